package base

import (
	"context"
	"errors"
	"fmt"
	"github.com/Infopercept/opensearch-sdk-go/rpc/common"
	"github.com/Infopercept/opensearch-sdk-go/rpc/transport"
	"net"
	"sync"
	"time"
)

// closeGrace is added to the drain timeout when waiting for a session to close
const closeGrace = time.Second

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.SessionConfig) (net.Listener, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.SessionConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// serverTransport implements the core server transport functionality
type serverTransport struct {
	connector IServerConnector
	registry  *registry

	mu       sync.Mutex
	observer common.IObserver
	listener net.Listener
	sessions map[*Session]struct{}
	stopping bool
	wg       sync.WaitGroup
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseServerTransport creates a new base server transport with the specified connector
func NewBaseServerTransport(connector IServerConnector) transport.IRPCServerTransport {
	return &serverTransport{
		connector: connector,
		registry:  newRegistry(),
		sessions:  make(map[*Session]struct{}),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) Register(action string, handler transport.Handler) error {
	return t.registry.Register(action, handler)
}

func (t *serverTransport) SetObserver(observer common.IObserver) {
	t.mu.Lock()
	t.observer = observer
	t.mu.Unlock()
}

func (t *serverTransport) Listen(ctx context.Context, config common.SessionConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Create listener using the connector
	listener, err := t.connector.Listen(config)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	return t.Serve(ctx, listener, config)
}

func (t *serverTransport) Serve(ctx context.Context, listener net.Listener, config common.SessionConfig) error {
	t.mu.Lock()
	if t.stopping {
		t.mu.Unlock()
		listener.Close()
		return net.ErrClosed
	}
	t.listener = listener
	t.mu.Unlock()

	// the registry is shared by all connections from here on
	t.registry.Freeze()

	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()

	Logger.Infof("Starting %s server on %s", t.connector.GetName(), listener.Addr())

	// Accept connections
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || t.isStopping() || ctx.Err() != nil {
				Logger.Infof("Listener on %s closed", listener.Addr())
				return nil
			}
			Logger.Errorf("Accept error: %v", err)
			continue
		}

		// Handle the connection in a goroutine
		t.mu.Lock()
		if t.stopping {
			t.mu.Unlock()
			conn.Close()
			return nil
		}
		t.wg.Add(1)
		t.mu.Unlock()
		go t.handleConnection(ctx, conn, config)
	}
}

func (t *serverTransport) Sessions() []transport.ISession {
	t.mu.Lock()
	defer t.mu.Unlock()

	sessions := make([]transport.ISession, 0, len(t.sessions))
	for s := range t.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

func (t *serverTransport) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	t.stopping = true
	listener := t.listener
	sessions := make([]*Session, 0, len(t.sessions))
	for s := range t.sessions {
		sessions = append(sessions, s)
	}
	t.mu.Unlock()

	if listener != nil {
		listener.Close()
	}

	// shut down all sessions concurrently, each drains its own handlers
	var errs []error
	var errMu sync.Mutex
	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			if err := s.Shutdown(ctx); err != nil {
				errMu.Lock()
				errs = append(errs, fmt.Errorf("session %s: %w", s.remote(), err))
				errMu.Unlock()
			}
		}(s)
	}
	wg.Wait()

	// wait for the connection goroutines, including handshakes in progress
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	return errors.Join(errs...)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (t *serverTransport) isStopping() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopping
}

// handleConnection runs the handshake and keeps track of the session until it closes
func (t *serverTransport) handleConnection(ctx context.Context, conn net.Conn, config common.SessionConfig) {
	defer t.wg.Done()

	if err := t.connector.UpgradeConnection(conn, config); err != nil {
		Logger.Errorf("Failed to upgrade connection from %s: %v", conn.RemoteAddr(), err)
		conn.Close()
		return
	}

	t.mu.Lock()
	observer := t.observer
	t.mu.Unlock()

	session := NewSession(conn, config, t.registry.Clone(), observer)
	if err := session.Accept(ctx); err != nil {
		Logger.Warningf("Handshake with %s failed: %v", conn.RemoteAddr(), err)
		return
	}

	t.mu.Lock()
	if t.stopping {
		t.mu.Unlock()
		session.Shutdown(context.Background())
		return
	}
	t.sessions[session] = struct{}{}
	t.mu.Unlock()

	peer := session.Peer()
	Logger.Infof("Accepted connection from %s (node %q)", session.remote(), peer.NodeName)

	<-session.Done()

	t.mu.Lock()
	delete(t.sessions, session)
	t.mu.Unlock()
}
