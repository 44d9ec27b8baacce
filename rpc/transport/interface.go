package transport

import (
	"context"
	"github.com/Infopercept/opensearch-sdk-go/rpc/common"
	"net"
)

// --------------------------------------------------------------------------
// Session
// --------------------------------------------------------------------------

// SessionState is the lifecycle state of a connection session
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateEstablished
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateEstablished:
		return "established"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ISession is a single established connection. Both peers of a session can
// send requests and serve requests at the same time.
type ISession interface {
	// Execute sends a request and blocks until the matching response arrives,
	// the request times out, ctx is done or the session closes
	Execute(ctx context.Context, action string, payload []byte, opts ...ExecuteOption) (*Response, error)
	// State returns the current lifecycle state
	State() SessionState
	// Peer returns what the remote side announced during the handshake
	Peer() HandshakeInfo
	// RemoteAddr returns the address of the remote side
	RemoteAddr() net.Addr
	// Pending returns the number of requests waiting for a response
	Pending() int
	// Shutdown stops accepting work, drains running handlers and closes the
	// connection. It returns when the session is closed or ctx is done.
	Shutdown(ctx context.Context) error
	// Done is closed once the session reached StateClosed
	Done() <-chan struct{}
	// Err returns the reason the session closed, nil for a local shutdown
	Err() error
}

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// IRPCServerTransport accepts connections and serves the registered actions
// on each of them
type IRPCServerTransport interface {
	// Register binds a handler to an action name. All handlers must be
	// registered before Listen is called.
	Register(action string, handler Handler) error
	// SetObserver installs the observer every session reports to
	SetObserver(observer common.IObserver)
	// Listen creates a listener from the config and serves it until Shutdown
	// is called or ctx is done
	Listen(ctx context.Context, config common.SessionConfig) error
	// Serve accepts connections on an existing listener, see Listen
	Serve(ctx context.Context, listener net.Listener, config common.SessionConfig) error
	// Sessions returns the currently open sessions
	Sessions() []ISession
	// Shutdown closes the listener and shuts down every open session
	Shutdown(ctx context.Context) error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport dials a single connection to a host
type IRPCClientTransport interface {
	// Register binds a handler for requests sent by the host. Handlers must
	// be registered before Connect is called.
	Register(action string, handler Handler) error
	// SetObserver installs the observer sessions report to
	SetObserver(observer common.IObserver)
	// Connect dials the endpoint from the config and performs the handshake.
	// An existing session is shut down first.
	Connect(ctx context.Context, config common.SessionConfig) error
	// Execute sends a request over the current session
	Execute(ctx context.Context, action string, payload []byte, opts ...ExecuteOption) (*Response, error)
	// Session returns the current session or nil before Connect
	Session() ISession
	// Close shuts down the current session
	Close() error
}
