package tcp

import (
	"context"
	"github.com/Infopercept/opensearch-sdk-go/rpc/common"
	"github.com/Infopercept/opensearch-sdk-go/rpc/transport"
	"github.com/Infopercept/opensearch-sdk-go/rpc/transport/base"
	"net"
)

// clientConnector implements the IClientConnector interface for TCP sockets
type clientConnector struct {
	dialer net.Dialer
}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IClientConnector)
// --------------------------------------------------------------------------

func (c *clientConnector) GetName() string {
	return "tcp"
}

func (c *clientConnector) Connect(ctx context.Context, endpoint string) (net.Conn, error) {
	return c.dialer.DialContext(ctx, "tcp", endpoint)
}

func (c *clientConnector) UpgradeConnection(conn net.Conn, config common.SessionConfig) error {
	return upgradeConnection(conn, config)
}

// --------------------------------------------------------------------------
// Client Transport Factory Method
// --------------------------------------------------------------------------

// NewTCPClientTransport creates a new TCP client transport
func NewTCPClientTransport() transport.IRPCClientTransport {
	return base.NewBaseClientTransport(&clientConnector{})
}
