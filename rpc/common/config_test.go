package common

import (
	"strings"
	"testing"
)

func TestSessionConfigEndpoint(t *testing.T) {
	c := DefaultSessionConfig()
	if got := c.Endpoint(); got != "127.0.0.1:1234" {
		t.Errorf("tcp endpoint = %q", got)
	}

	c.Host = "::1"
	if got := c.Endpoint(); got != "[::1]:1234" {
		t.Errorf("ipv6 endpoint = %q", got)
	}

	c.Network = "unix"
	c.SocketPath = "/tmp/ext.sock"
	if got := c.Endpoint(); got != "/tmp/ext.sock" {
		t.Errorf("unix endpoint = %q", got)
	}
}

func TestSessionConfigValidate(t *testing.T) {
	if c := DefaultSessionConfig(); c.Validate() != nil {
		t.Fatalf("default config invalid: %v", c.Validate())
	}

	tests := map[string]func(c *SessionConfig){
		"network":     func(c *SessionConfig) { c.Network = "udp" },
		"port":        func(c *SessionConfig) { c.Port = 70000 },
		"socket path": func(c *SessionConfig) { c.Network = "unix" },
		"frame size":  func(c *SessionConfig) { c.MaxFrameSize = 0 },
		"header size": func(c *SessionConfig) { c.MaxHeaderSize = -1 },
		"timeout":     func(c *SessionConfig) { c.DrainTimeout = -1 },
		"inflight":    func(c *SessionConfig) { c.MaxInflightHandlers = -1 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := DefaultSessionConfig()
			mutate(&c)
			if c.Validate() == nil {
				t.Error("invalid config accepted")
			}
		})
	}
}

func TestServerAndClientConfig(t *testing.T) {
	s := DefaultServerConfig()
	if err := s.Validate(); err != nil {
		t.Fatalf("default server config invalid: %v", err)
	}
	s.LogLevel = "chatty"
	if s.Validate() == nil {
		t.Error("invalid log level accepted")
	}
	if out := s.String(); !strings.Contains(out, "LOGGING") || !strings.Contains(out, "chatty") {
		t.Errorf("server config string:\n%s", out)
	}

	c := DefaultClientConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("default client config invalid: %v", err)
	}
	c.RetryMaxAttempts = 0
	c.RetryMultiplier = 0.5
	if c.Validate() == nil {
		t.Error("invalid retry settings accepted")
	}
	if out := c.String(); !strings.Contains(out, "CIRCUIT BREAKER") {
		t.Errorf("client config string:\n%s", out)
	}
}
