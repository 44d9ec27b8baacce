package client

import (
	"context"
	"errors"
	"github.com/Infopercept/opensearch-sdk-go/rpc/common"
	"github.com/Infopercept/opensearch-sdk-go/rpc/serializer"
	"github.com/Infopercept/opensearch-sdk-go/rpc/server"
	"github.com/Infopercept/opensearch-sdk-go/rpc/transport/tcp"
	"net"
	"testing"
	"time"
)

type sumRequest struct {
	Values []int `json:"values"`
}

type sumResponse struct {
	Sum int `json:"sum"`
}

// startServer runs an extension server with a sum action on a loopback port
func startServer(t *testing.T) common.SessionConfig {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	cfg := common.DefaultServerConfig()
	cfg.Session.Port = listener.Addr().(*net.TCPAddr).Port
	cfg.Session.DrainTimeout = 200 * time.Millisecond

	s := server.NewServer(cfg, tcp.NewTCPServerTransport(), serializer.NewJSONSerializer())
	err = s.Register("sum", server.TypedHandler(s.Serializer(), func(ctx context.Context, req sumRequest) (sumResponse, error) {
		var resp sumResponse
		for _, v := range req.Values {
			resp.Sum += v
		}
		return resp, nil
	}))
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	served := make(chan error, 1)
	go func() { served <- s.ServeListener(context.Background(), listener) }()

	deadline := time.Now().Add(2 * time.Second)
	for !s.Lifecycle().IsRunning() {
		if time.Now().After(deadline) {
			t.Fatalf("server did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Shutdown(ctx)
		<-served
	})
	return cfg.Session
}

func testClientConfig(session common.SessionConfig) common.ClientConfig {
	cfg := common.DefaultClientConfig()
	cfg.Session = session
	cfg.RetryInitialBackoff = time.Millisecond
	cfg.RetryJitter = false
	return cfg
}

func TestClientInvokePingHealth(t *testing.T) {
	c := NewClient(testClientConfig(startServer(t)), tcp.NewTCPClientTransport(), serializer.NewJSONSerializer())
	defer c.Close()

	// the first call connects
	resp, err := Invoke[sumRequest, sumResponse](context.Background(), c, "sum", sumRequest{Values: []int{1, 2, 3}})
	if err != nil {
		t.Fatalf("invoke failed: %v", err)
	}
	if resp.Sum != 6 {
		t.Errorf("sum = %d, want 6", resp.Sum)
	}

	if _, err := c.Ping(context.Background()); err != nil {
		t.Errorf("ping failed: %v", err)
	}

	report, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("health failed: %v", err)
	}
	if report.Status != server.Healthy {
		t.Errorf("status = %s, want healthy", report.Status)
	}

	_, err = c.Execute(context.Background(), "missing", nil)
	if !errors.Is(err, common.ErrUnknownAction) {
		t.Errorf("got %v, want ErrUnknownAction", err)
	}
	if c.Breaker().State() != CircuitClosed {
		t.Errorf("breaker %s after a remote error", c.Breaker().State())
	}
}

func TestClientReconnects(t *testing.T) {
	c := NewClient(testClientConfig(startServer(t)), tcp.NewTCPClientTransport(), serializer.NewJSONSerializer())
	defer c.Close()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	first := c.Transport().Session()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := first.Shutdown(ctx); err != nil {
		t.Fatalf("session shutdown failed: %v", err)
	}

	if _, err := c.Ping(context.Background()); err != nil {
		t.Fatalf("ping after session close failed: %v", err)
	}
	if c.Transport().Session() == first {
		t.Error("session was not replaced")
	}
}

func TestClientBreakerOpens(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	session := common.DefaultSessionConfig()
	session.Port = listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	cfg := testClientConfig(session)
	cfg.RetryMaxAttempts = 1
	cfg.BreakerFailureThreshold = 2
	cfg.BreakerOpenTimeout = time.Hour
	c := NewClient(cfg, tcp.NewTCPClientTransport(), serializer.NewJSONSerializer())

	for i := 0; i < 2; i++ {
		if _, err := c.Ping(context.Background()); !errors.Is(err, common.ErrConnectionClosed) {
			t.Fatalf("attempt %d: got %v, want ErrConnectionClosed", i, err)
		}
	}
	if c.Breaker().State() != CircuitOpen {
		t.Fatalf("breaker = %s, want open", c.Breaker().State())
	}
	if _, err := c.Ping(context.Background()); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("got %v, want ErrCircuitOpen", err)
	}
}
