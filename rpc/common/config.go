package common

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Defaults
// --------------------------------------------------------------------------

const (
	DefaultHost             = "127.0.0.1"
	DefaultPort             = 1234
	DefaultMaxFrameSize     = 16 * 1024 * 1024 // 16 MiB payload
	DefaultMaxHeaderSize    = 64 * 1024        // 64 KiB encoded header
	DefaultTimeout          = 30 * time.Second
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultDrainTimeout     = 5 * time.Second
)

// --------------------------------------------------------------------------
// Socket tuning
// --------------------------------------------------------------------------

// TCPConf holds TCP specific socket options. They are applied by the tcp
// connectors after a connection was dialed or accepted.
type TCPConf struct {
	NoDelay      bool
	KeepAliveSec int
	LingerSec    int // negative keeps the OS default
}

// SocketConf holds the kernel buffer sizes. Zero keeps the OS default.
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// --------------------------------------------------------------------------
// Session configuration
// --------------------------------------------------------------------------

// SessionConfig holds everything a single connection needs: where to connect,
// how big frames may get and how long to wait for what.
type SessionConfig struct {
	// Network is either "tcp" or "unix"
	Network    string
	Host       string
	Port       int
	SocketPath string // used when Network is "unix"

	MaxFrameSize  int
	MaxHeaderSize int

	DefaultTimeout   time.Duration
	HandshakeTimeout time.Duration
	DrainTimeout     time.Duration
	WriteTimeout     time.Duration // zero disables write deadlines

	// MaxInflightHandlers bounds concurrently running handlers per
	// connection, zero means unbounded
	MaxInflightHandlers int

	// advertised during the handshake
	NodeName string
	Features []string

	TCPConf    TCPConf
	SocketConf SocketConf
}

// DefaultSessionConfig returns a SessionConfig populated with the defaults
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Network:          "tcp",
		Host:             DefaultHost,
		Port:             DefaultPort,
		MaxFrameSize:     DefaultMaxFrameSize,
		MaxHeaderSize:    DefaultMaxHeaderSize,
		DefaultTimeout:   DefaultTimeout,
		HandshakeTimeout: DefaultHandshakeTimeout,
		DrainTimeout:     DefaultDrainTimeout,
		TCPConf: TCPConf{
			NoDelay:      true,
			KeepAliveSec: 30,
			LingerSec:    -1,
		},
	}
}

// Endpoint returns the address to dial or listen on
func (c *SessionConfig) Endpoint() string {
	if c.Network == "unix" {
		return c.SocketPath
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate checks the configuration for values the transport cannot work with
func (c *SessionConfig) Validate() error {
	var errs []error

	switch c.Network {
	case "tcp":
		if c.Port < 0 || c.Port > 65535 {
			errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
		}
	case "unix":
		if c.SocketPath == "" {
			errs = append(errs, errors.New("socket path must be set for unix transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown network %q (must be tcp or unix)", c.Network))
	}

	if c.MaxFrameSize <= 0 {
		errs = append(errs, fmt.Errorf("max frame size must be positive, got %d", c.MaxFrameSize))
	}
	if c.MaxHeaderSize <= 0 {
		errs = append(errs, fmt.Errorf("max header size must be positive, got %d", c.MaxHeaderSize))
	}
	if c.DefaultTimeout < 0 || c.HandshakeTimeout < 0 || c.DrainTimeout < 0 || c.WriteTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	if c.MaxInflightHandlers < 0 {
		errs = append(errs, fmt.Errorf("max inflight handlers must not be negative, got %d", c.MaxInflightHandlers))
	}

	return errors.Join(errs...)
}

// String returns a formatted string representation of the configuration
func (c *SessionConfig) String() string {
	var sb strings.Builder
	c.writeTo(&sb)
	return sb.String()
}

func (c *SessionConfig) writeTo(sb *strings.Builder) {
	addSection, addField := formatHelpers(sb)

	addSection("Connection")
	addField("Network", c.Network)
	addField("Endpoint", c.Endpoint())
	addField("Node Name", orNone(c.NodeName))
	addField("Features", orNone(strings.Join(c.Features, ", ")))

	addSection("Limits")
	addField("Max Frame Size", fmt.Sprintf("%d bytes", c.MaxFrameSize))
	addField("Max Header Size", fmt.Sprintf("%d bytes", c.MaxHeaderSize))
	addField("Max Inflight Handlers", unlimited(c.MaxInflightHandlers))

	addSection("Timeouts")
	addField("Default Timeout", c.DefaultTimeout.String())
	addField("Handshake Timeout", c.HandshakeTimeout.String())
	addField("Drain Timeout", c.DrainTimeout.String())
	addField("Write Timeout", c.WriteTimeout.String())

	if c.Network == "tcp" {
		addSection("Socket")
		addField("TCP No Delay", strconv.FormatBool(c.TCPConf.NoDelay))
		addField("TCP Keep Alive", fmt.Sprintf("%d sec", c.TCPConf.KeepAliveSec))
		addField("TCP Linger", fmt.Sprintf("%d sec", c.TCPConf.LingerSec))
		addField("Write Buffer", fmt.Sprintf("%d bytes", c.SocketConf.WriteBufferSize))
		addField("Read Buffer", fmt.Sprintf("%d bytes", c.SocketConf.ReadBufferSize))
	}
}

// --------------------------------------------------------------------------
// Extension server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds the configuration of an extension server process
type ServerConfig struct {
	Session SessionConfig

	// Logging configuration
	LogLevel string
	LogFile  string // empty logs to stdout only

	// admin http endpoint serving /metrics and /health, empty disables it
	MetricsEndpoint string
}

// DefaultServerConfig returns a ServerConfig populated with the defaults
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Session:  DefaultSessionConfig(),
		LogLevel: "info",
	}
}

// Validate checks the session and logging settings
func (c *ServerConfig) Validate() error {
	var errs []error
	if err := c.Session.Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder
	c.Session.writeTo(&sb)

	addSection, addField := formatHelpers(&sb)
	addSection("Logging")
	addField("Log Level", c.LogLevel)
	addField("Log File", orNone(c.LogFile))

	addSection("Admin")
	addField("Metrics Endpoint", orNone(c.MetricsEndpoint))

	return sb.String()
}

// --------------------------------------------------------------------------
// Extension client configuration struct
// --------------------------------------------------------------------------

// ClientConfig holds the configuration of an extension client including the
// retry policy and the circuit breaker thresholds
type ClientConfig struct {
	Session SessionConfig

	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64
	RetryJitter         bool

	BreakerFailureThreshold int
	BreakerSuccessThreshold int
	BreakerOpenTimeout      time.Duration
}

// DefaultClientConfig returns a ClientConfig populated with the defaults
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Session:                 DefaultSessionConfig(),
		RetryMaxAttempts:        3,
		RetryInitialBackoff:     100 * time.Millisecond,
		RetryMaxBackoff:         30 * time.Second,
		RetryMultiplier:         2.0,
		RetryJitter:             true,
		BreakerFailureThreshold: 5,
		BreakerSuccessThreshold: 2,
		BreakerOpenTimeout:      30 * time.Second,
	}
}

// Validate checks the session, retry and breaker settings
func (c *ClientConfig) Validate() error {
	var errs []error
	if err := c.Session.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.RetryMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry max attempts must be at least 1, got %d", c.RetryMaxAttempts))
	}
	if c.RetryMultiplier < 1 {
		errs = append(errs, fmt.Errorf("retry multiplier must be at least 1, got %g", c.RetryMultiplier))
	}
	if c.RetryInitialBackoff < 0 || c.RetryMaxBackoff < 0 || c.BreakerOpenTimeout < 0 {
		errs = append(errs, errors.New("backoff and breaker durations must not be negative"))
	}
	return errors.Join(errs...)
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder
	c.Session.writeTo(&sb)

	addSection, addField := formatHelpers(&sb)
	addSection("Retry")
	addField("Max Attempts", strconv.Itoa(c.RetryMaxAttempts))
	addField("Initial Backoff", c.RetryInitialBackoff.String())
	addField("Max Backoff", c.RetryMaxBackoff.String())
	addField("Multiplier", strconv.FormatFloat(c.RetryMultiplier, 'g', -1, 64))
	addField("Jitter", strconv.FormatBool(c.RetryJitter))

	addSection("Circuit Breaker")
	addField("Failure Threshold", strconv.Itoa(c.BreakerFailureThreshold))
	addField("Success Threshold", strconv.Itoa(c.BreakerSuccessThreshold))
	addField("Open Timeout", c.BreakerOpenTimeout.String())

	return sb.String()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// formatHelpers creates helper functions for consistent formatting
func formatHelpers(sb *strings.Builder) (addSection func(string), addField func(string, string)) {
	addSection = func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}
	addField = func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}
	return
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func unlimited(n int) string {
	if n <= 0 {
		return "unlimited"
	}
	return strconv.Itoa(n)
}
