// Package tcp implements the TCP socket transport for extensions. It provides
// concrete implementations of the base package's connector interfaces.
//
// This package builds on the base package's session handling, which does the
// framing, request correlation and dispatching. The connectors here only dial,
// listen and apply the socket options from common.TCPConf and
// common.SocketConf (no delay, keep-alive, linger and buffer sizes).
//
// Key Components:
//
//   - clientConnector: TCP-specific implementation of base.IClientConnector
//
//   - serverConnector: TCP-specific implementation of base.IServerConnector
package tcp
