package base

import (
	"context"
	"fmt"
	"github.com/Infopercept/opensearch-sdk-go/rpc/common"
	"github.com/Infopercept/opensearch-sdk-go/rpc/transport"
	"net"
	"sync"
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to the endpoint
	Connect(ctx context.Context, endpoint string) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.SessionConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// clientTransport implements the core client transport functionality
// independent of the specific transport medium (unix, tcp, etc.)
type clientTransport struct {
	connector IClientConnector
	registry  *registry

	mu       sync.RWMutex
	session  *Session
	observer common.IObserver
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{
		connector: connector,
		registry:  newRegistry(),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Register(action string, handler transport.Handler) error {
	return t.registry.Register(action, handler)
}

func (t *clientTransport) SetObserver(observer common.IObserver) {
	t.mu.Lock()
	t.observer = observer
	t.mu.Unlock()
}

func (t *clientTransport) Connect(ctx context.Context, config common.SessionConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Close the existing session
	if err := t.Close(); err != nil {
		Logger.Warningf("Failed to close previous session: %v", err)
	}

	endpoint := config.Endpoint()
	conn, err := t.connector.Connect(ctx, endpoint)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}

	// Upgrade the connection with protocol-specific settings
	if err := t.connector.UpgradeConnection(conn, config); err != nil {
		conn.Close()
		return fmt.Errorf("failed to upgrade connection to %s: %w", endpoint, err)
	}

	t.mu.RLock()
	observer := t.observer
	t.mu.RUnlock()

	// every session gets its own copy, the original stays open for registrations
	session := NewSession(conn, config, t.registry.Clone(), observer)
	if err := session.Dial(ctx); err != nil {
		return fmt.Errorf("handshake with %s failed: %w", endpoint, err)
	}

	t.mu.Lock()
	t.session = session
	t.mu.Unlock()

	peer := session.Peer()
	Logger.Infof("Connected to %s (node %q, version %d) using %s transport",
		endpoint, peer.NodeName, peer.Version, t.connector.GetName())
	return nil
}

func (t *clientTransport) Execute(ctx context.Context, action string, payload []byte, opts ...transport.ExecuteOption) (*transport.Response, error) {
	t.mu.RLock()
	session := t.session
	t.mu.RUnlock()

	if session == nil {
		return nil, &common.RequestError{Action: action, Kind: common.ErrConnectionClosed}
	}
	return session.Execute(ctx, action, payload, opts...)
}

func (t *clientTransport) Session() transport.ISession {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.session == nil {
		return nil
	}
	return t.session
}

func (t *clientTransport) Close() error {
	t.mu.Lock()
	session := t.session
	t.session = nil
	t.mu.Unlock()

	if session == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), session.config.DrainTimeout+closeGrace)
	defer cancel()
	return session.Shutdown(ctx)
}
