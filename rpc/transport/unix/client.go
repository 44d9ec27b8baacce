package unix

import (
	"context"
	"github.com/Infopercept/opensearch-sdk-go/rpc/common"
	"github.com/Infopercept/opensearch-sdk-go/rpc/transport"
	"github.com/Infopercept/opensearch-sdk-go/rpc/transport/base"
	"net"
)

// clientConnector implements the IClientConnector interface for Unix sockets
type clientConnector struct {
	dialer net.Dialer
}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IClientConnector)
// --------------------------------------------------------------------------

func (c *clientConnector) GetName() string {
	return "unix"
}

func (c *clientConnector) Connect(ctx context.Context, endpoint string) (net.Conn, error) {
	return c.dialer.DialContext(ctx, "unix", endpoint)
}

func (c *clientConnector) UpgradeConnection(conn net.Conn, config common.SessionConfig) error {
	return upgradeConnection(conn, config)
}

// --------------------------------------------------------------------------
// Client Transport Factory Method
// --------------------------------------------------------------------------

// NewUnixClientTransport creates a new Unix client transport
func NewUnixClientTransport() transport.IRPCClientTransport {
	return base.NewBaseClientTransport(&clientConnector{})
}
