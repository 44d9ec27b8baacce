// Package server hosts an extension on a server transport.
//
// The Server wraps a transport.IRPCServerTransport (TCP or Unix) and adds the
// pieces every extension needs on top of the bare connection handling:
//
//   - A lifecycle (created, initializing, initialized, running, stopping,
//     stopped, with failed reachable from every state) observable through
//     state listeners.
//
//   - A HealthService with named checks. The overall status is the worst
//     check, a built-in "lifecycle" check follows the server state.
//
//   - The built-in actions internal:transport/ping, which echoes its payload,
//     and internal:health, which answers with the serialized HealthReport.
//
//   - TypedHandler, which adapts functions on decoded values to handlers
//     using one of the serializer package's formats.
//
// Usage Example:
//
//	s := server.NewServer(config, tcp.NewTCPServerTransport(), serializer.NewJSONSerializer())
//	s.Attach(myExtension)
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//
//	if err := s.Serve(ctx); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
package server
