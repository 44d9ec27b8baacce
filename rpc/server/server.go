package server

import (
	"context"
	"errors"
	"fmt"
	"github.com/Infopercept/opensearch-sdk-go/rpc/common"
	"github.com/Infopercept/opensearch-sdk-go/rpc/serializer"
	"github.com/Infopercept/opensearch-sdk-go/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"net"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
)

var Logger = logger.GetLogger("server")

// PingAction is the built-in action echoing its payload
const PingAction = "internal:transport/ping"

// lifecycleCheck is the health check that follows the lifecycle state
const lifecycleCheck = "lifecycle"

// IExtension is implemented by the code hosted in a server. Initialize is
// the place to register actions, Shutdown runs before the transport closes.
type IExtension interface {
	Name() string
	Initialize(ctx context.Context, s *Server) error
	Shutdown(ctx context.Context) error
}

// Server hosts an extension on a server transport. It registers the
// built-in ping and health actions, drives the lifecycle state and tracks
// health.
type Server struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	lifecycle  *LifecycleManager
	health     *HealthService

	mu        sync.Mutex
	extension IExtension

	stopOnce sync.Once
	stopErr  error
}

// NewServer creates a new extension server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewServer(
//		config,
//		tcp.NewTCPServerTransport(),
//		serializer.NewJSONSerializer(),
//	)
//
//	if err := s.Serve(ctx); err != nil {
//		panic(err)
//	}
func NewServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *Server {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	s := &Server{
		config:     config,
		transport:  transport,
		serializer: serializer,
		lifecycle:  NewLifecycleManager(),
		health:     NewHealthService(),
	}

	s.health.RegisterCheck(lifecycleCheck)
	s.lifecycle.AddListener(LoggingStateListener{})
	s.lifecycle.AddListener(StateListenerFunc(s.trackLifecycle))

	Logger.Infof("Created extension server")
	Logger.Infof(config.String())
	return s
}

// --------------------------------------------------------------------------
// Accessors
// --------------------------------------------------------------------------

// Attach sets the extension initialized by Serve. It must be called before Serve.
func (s *Server) Attach(ext IExtension) {
	s.mu.Lock()
	s.extension = ext
	s.mu.Unlock()
}

// Register binds a handler to an action, see transport.IRPCServerTransport
func (s *Server) Register(action string, handler transport.Handler) error {
	return s.transport.Register(action, handler)
}

// SetObserver installs the observer of all sessions
func (s *Server) SetObserver(observer common.IObserver) {
	s.transport.SetObserver(observer)
}

func (s *Server) Lifecycle() *LifecycleManager          { return s.lifecycle }
func (s *Server) Health() *HealthService                { return s.health }
func (s *Server) Serializer() serializer.IRPCSerializer { return s.serializer }
func (s *Server) Sessions() []transport.ISession        { return s.transport.Sessions() }
func (s *Server) Config() common.ServerConfig           { return s.config }

// --------------------------------------------------------------------------
// Serving
// --------------------------------------------------------------------------

// Serve initializes the extension and serves the configured endpoint until
// ctx is done or Shutdown is called
func (s *Server) Serve(ctx context.Context) error {
	return s.run(ctx, func(ctx context.Context) error {
		return s.transport.Listen(ctx, s.config.Session)
	})
}

// ServeListener is Serve on an existing listener
func (s *Server) ServeListener(ctx context.Context, listener net.Listener) error {
	return s.run(ctx, func(ctx context.Context) error {
		return s.transport.Serve(ctx, listener, s.config.Session)
	})
}

// Shutdown stops the extension and the transport. It is safe to call more
// than once, later calls return the result of the first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.stopErr = s.stop(ctx)
	})
	return s.stopErr
}

func (s *Server) run(ctx context.Context, serve func(ctx context.Context) error) error {
	if err := s.init(ctx); err != nil {
		s.fail(err)
		return err
	}
	if err := s.lifecycle.TransitionTo(StateRunning); err != nil {
		return err
	}

	if err := serve(ctx); err != nil {
		s.fail(err)
		return fmt.Errorf("serve failed: %w", err)
	}

	// the listener was closed by ctx or by a concurrent Shutdown
	stopCtx, cancel := context.WithTimeout(context.Background(), s.config.Session.DrainTimeout+s.config.Session.HandshakeTimeout)
	defer cancel()
	return s.Shutdown(stopCtx)
}

func (s *Server) init(ctx context.Context) error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := s.lifecycle.TransitionTo(StateInitializing); err != nil {
		return err
	}

	if err := s.Register(PingAction, s.handlePing); err != nil {
		return err
	}
	if err := s.Register(HealthAction, s.handleHealth); err != nil {
		return err
	}

	s.mu.Lock()
	ext := s.extension
	s.mu.Unlock()
	if ext != nil {
		if err := ext.Initialize(ctx, s); err != nil {
			return fmt.Errorf("failed to initialize extension %q: %w", ext.Name(), err)
		}
		Logger.Infof("Initialized extension %q", ext.Name())
	}

	return s.lifecycle.TransitionTo(StateInitialized)
}

func (s *Server) stop(ctx context.Context) error {
	if err := s.lifecycle.TransitionTo(StateStopping); err != nil {
		// never started or already failed, only release the transport
		return s.transport.Shutdown(ctx)
	}

	var errs []error
	s.mu.Lock()
	ext := s.extension
	s.mu.Unlock()
	if ext != nil {
		if err := ext.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("extension %q: %w", ext.Name(), err))
		}
	}
	if err := s.transport.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		s.fail(err)
		return err
	}
	return s.lifecycle.TransitionTo(StateStopped)
}

func (s *Server) fail(err error) {
	Logger.Errorf("Extension server failed: %v", err)
	if s.lifecycle.State() != StateFailed {
		_ = s.lifecycle.TransitionTo(StateFailed)
	}
}

// trackLifecycle mirrors the lifecycle state into the lifecycle health check
func (s *Server) trackLifecycle(_, to State) {
	status := Degraded
	switch to {
	case StateRunning:
		status = Healthy
	case StateStopped, StateFailed:
		status = Unhealthy
	}
	_ = s.health.UpdateCheck(lifecycleCheck, status, to.String())
}

// --------------------------------------------------------------------------
// Built-in Actions
// --------------------------------------------------------------------------

func (s *Server) handlePing(_ context.Context, req *transport.Request) ([]byte, error) {
	return req.Payload, nil
}

func (s *Server) handleHealth(_ context.Context, _ *transport.Request) ([]byte, error) {
	return s.serializer.Serialize(s.health.Report())
}
