// Package base provides the connection handling shared by all extension
// transports, independent of the specific network protocol (TCP, Unix
// sockets). It serves as a base layer that is extended with protocol-specific
// connectors.
//
// The package focuses on:
//   - One multiplexed connection per peer, usable in both directions
//   - Correlating responses to concurrent requests by request id
//   - Dispatching inbound requests to registered handlers without blocking
//     the reader
//   - An explicit session lifecycle with graceful draining on shutdown
//
// Key Components:
//
//   - Session: owns the socket, the write lock, the table of outstanding
//     requests and the dispatcher. It moves from connecting over established
//     and closing to closed, never skipping closing.
//
//   - correlator: allocates request ids (never 0, never one still in use) and
//     resolves each outstanding request exactly once. Requests abandoned after
//     a timeout keep their id reserved until the late response arrives.
//
//   - dispatcher: runs each inbound request in its own goroutine and makes
//     sure exactly one response frame is written, also for unknown actions,
//     handler errors and panics.
//
//   - IClientConnector/IServerConnector: interfaces for protocol-specific
//     operations (dial, listen, socket options).
//
// Thread Safety:
//
//	All exported methods are safe for concurrent use. Reads happen on a single
//	goroutine per connection, writes are serialized by a mutex so frames are
//	never interleaved.
package base
