// Package rpc provides the transport layer between an extension and its
// host search engine. Both sides keep one long-lived connection over which
// either of them can send requests, responses are matched by request id.
//
// The package is organized into several subpackages:
//
//   - protocol: The wire format. Header codec, frame encoding and a framer
//     that splits a byte stream into frames and enforces size limits.
//
//   - transport: Session, handler and request types plus the client and
//     server transport interfaces. The base subpackage implements sessions
//     (handshake, correlation, dispatch, shutdown), tcp and unix provide the
//     connectors.
//
//   - common: Configuration, errors, observation events and logging.
//
//   - serializer: Payload serialization (JSON, GOB, Binary) for typed calls.
//
//   - server: Hosts an extension with lifecycle, health and built-in actions.
//
//   - client: Retry, circuit breaker and typed calls on top of a client
//     transport.
//
//   - metrics: An observer exporting session events as metrics.
package rpc
