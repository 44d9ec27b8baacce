// Package unix implements the extension transport over Unix domain sockets.
// It is meant for an extension running on the same machine as the host.
//
// This package extends the base transport layer with Unix socket-specific
// connectors while inheriting the session handling (framing, correlation,
// dispatching, shutdown) from the base package.
//
// Key Components:
//
//   - clientConnector: Establishes connections using Unix domain sockets
//
//   - serverConnector: Creates Unix socket listeners, removing a stale socket
//     file first
package unix
