// Package common provides the types shared by all layers of the extension
// transport: configuration, errors, observation events and logging.
//
// The package focuses on:
//   - Configuration structures for sessions, servers and clients
//   - The error taxonomy surfaced to callers of Execute
//   - Session events reported to an IObserver
//   - A zap backed logging implementation for Dragonboat's logger package
//
// Key Components:
//
//   - SessionConfig: Endpoint, frame limits, timeouts, socket tuning and the
//     values announced during the handshake. ServerConfig adds logging and the
//     admin endpoint, ClientConfig adds retry and circuit breaker settings.
//
//   - RequestError: Returned when a request produced no response (timeout,
//     closed connection, canceled context). Unwraps to the sentinel errors.
//
//   - RemoteError: Returned when the peer answered with an error response.
//     errors.Is matches it against ErrUnknownAction, ErrHandlerFailed and
//     ErrRejected.
//
//   - Event and IObserver: Connects, disconnects, decode and dispatch errors,
//     duplicate responses and completed requests. LogObserver is the default.
//
//   - InitLoggers: Installs the logger factory. Console output goes to stdout,
//     JSON output to an optional rolling log file.
package common
