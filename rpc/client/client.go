package client

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"github.com/Infopercept/opensearch-sdk-go/rpc/common"
	"github.com/Infopercept/opensearch-sdk-go/rpc/serializer"
	"github.com/Infopercept/opensearch-sdk-go/rpc/server"
	"github.com/Infopercept/opensearch-sdk-go/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"sync"
	"time"
)

var Logger = logger.GetLogger("client")

// Client talks to an extension (or a host) over a client transport. Every
// call goes through the circuit breaker and is retried according to the
// retry policy. A closed session is replaced by a new connection before the
// next attempt.
type Client struct {
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
	retry      RetryPolicy
	breaker    *CircuitBreaker

	connMu sync.Mutex
}

// NewClient creates a new extension client. It does not connect, the first
// call (or Connect) does.
//
// Usage:
//
//	c := client.NewClient(
//		config,
//		tcp.NewTCPClientTransport(),
//		serializer.NewJSONSerializer(),
//	)
//	defer c.Close()
//
//	rtt, err := c.Ping(ctx)
func NewClient(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) *Client {
	return &Client{
		config:     config,
		transport:  transport,
		serializer: serializer,
		retry:      NewRetryPolicy(config),
		breaker:    NewCircuitBreaker(config.BreakerFailureThreshold, config.BreakerSuccessThreshold, config.BreakerOpenTimeout),
	}
}

func (c *Client) Breaker() *CircuitBreaker              { return c.breaker }
func (c *Client) Serializer() serializer.IRPCSerializer { return c.serializer }
func (c *Client) Transport() transport.IRPCClientTransport {
	return c.transport
}

// Connect validates the config and opens the connection
func (c *Client) Connect(ctx context.Context) error {
	if err := c.config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.transport.Connect(ctx, c.config.Session)
}

// Close closes the current connection
func (c *Client) Close() error {
	return c.transport.Close()
}

// Execute sends a request with retries and returns the raw response
func (c *Client) Execute(ctx context.Context, action string, payload []byte, opts ...transport.ExecuteOption) (*transport.Response, error) {
	var resp *transport.Response
	err := c.retry.Do(ctx, func(attempt int) error {
		if err := c.breaker.Allow(); err != nil {
			return err
		}

		r, err := c.attempt(ctx, action, payload, opts...)
		c.record(err)
		if err != nil {
			return err
		}
		if attempt > 1 {
			Logger.Infof("%s succeeded after %d attempts", action, attempt)
		}
		resp = r
		return nil
	})
	return resp, err
}

// Ping sends the built-in ping action and returns the round trip time
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	payload := binary.BigEndian.AppendUint64(nil, uint64(start.UnixNano()))

	resp, err := c.Execute(ctx, server.PingAction, payload)
	if err != nil {
		return 0, err
	}
	if !bytes.Equal(resp.Payload, payload) {
		return 0, fmt.Errorf("ping answered with %d unexpected bytes", len(resp.Payload))
	}
	return time.Since(start), nil
}

// Health asks the peer for its health report
func (c *Client) Health(ctx context.Context) (server.HealthReport, error) {
	return Invoke[any, server.HealthReport](ctx, c, server.HealthAction, nil)
}

// Invoke serializes req with the client's serializer, executes action and
// deserializes the response into a Resp. A nil req sends an empty payload.
func Invoke[Req, Resp any](ctx context.Context, c *Client, action string, req Req, opts ...transport.ExecuteOption) (Resp, error) {
	var resp Resp

	var payload []byte
	if any(req) != nil {
		var err error
		if payload, err = c.serializer.Serialize(req); err != nil {
			return resp, fmt.Errorf("failed to serialize request: %w", err)
		}
	}

	r, err := c.Execute(ctx, action, payload, opts...)
	if err != nil {
		return resp, err
	}
	if err := c.serializer.Deserialize(r.Payload, &resp); err != nil {
		return resp, fmt.Errorf("failed to deserialize response of %s: %w", action, err)
	}
	return resp, nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (c *Client) attempt(ctx context.Context, action string, payload []byte, opts ...transport.ExecuteOption) (*transport.Response, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}
	return c.transport.Execute(ctx, action, payload, opts...)
}

// ensureConnected dials when there is no session or the current one is gone
func (c *Client) ensureConnected(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if s := c.transport.Session(); s != nil && s.State() == transport.StateEstablished {
		return nil
	}

	Logger.Debugf("connecting to %s", c.config.Session.Endpoint())
	if err := c.transport.Connect(ctx, c.config.Session); err != nil {
		return fmt.Errorf("%w: %w", common.ErrConnectionClosed, err)
	}
	return nil
}

// record feeds the breaker. Errors produced by the peer's handlers mean the
// connection works and count as success.
func (c *Client) record(err error) {
	var remote *common.RemoteError
	switch {
	case err == nil:
		c.breaker.Success()
	case errors.As(err, &remote) && !errors.Is(err, common.ErrRejected):
		c.breaker.Success()
	case errors.Is(err, context.Canceled):
		// the caller gave up, nothing is known about the peer
	default:
		c.breaker.Failure()
	}
}
