// Package client provides a resilient client for extension transports.
//
// Client wraps a transport.IRPCClientTransport and adds what a caller needs
// on top of a single connection:
//
//   - Reconnect: a session that closed is replaced by a new connection
//     before the next attempt.
//
//   - RetryPolicy: exponential backoff with optional jitter. Only connection
//     failures are retried (ErrConnectionClosed, ErrTimeout and rejected
//     requests), never errors returned by a handler.
//
//   - CircuitBreaker: opens after a run of connection failures, fails fast
//     while open and probes the peer again after a timeout.
//
//   - Invoke, Ping and Health: typed calls using a serializer, the built-in
//     ping action and the built-in health action.
//
// Usage Example:
//
//	c := client.NewClient(common.DefaultClientConfig(), tcp.NewTCPClientTransport(), serializer.NewJSONSerializer())
//	defer c.Close()
//
//	report, err := c.Health(ctx)
//	if err != nil {
//	  log.Fatalf("health failed: %v", err)
//	}
//	fmt.Println(report.Status)
package client
