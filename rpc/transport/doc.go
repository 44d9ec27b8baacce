// Package transport defines the interfaces and shared types of the extension
// transport. A transport carries framed requests and responses over one
// multiplexed connection between an extension and the host.
//
// The package focuses on:
//   - Defining clear interfaces for client and server transport layers
//   - The request, response and handler types seen by application code
//   - The handshake exchanged when a connection is opened
//
// Key Components:
//
//   - IRPCClientTransport: dials the host, performs the handshake and executes
//     requests over the resulting session.
//
//   - IRPCServerTransport: accepts connections and serves registered actions,
//     one ISession per connection.
//
//   - ISession: a single connection with its lifecycle
//     (connecting, established, closing, closed).
//
//   - Handler, Request, Response: the application facing request model.
package transport
