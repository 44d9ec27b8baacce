package tcp

import (
	"fmt"
	"github.com/Infopercept/opensearch-sdk-go/rpc/common"
	"github.com/Infopercept/opensearch-sdk-go/rpc/transport"
	"github.com/Infopercept/opensearch-sdk-go/rpc/transport/base"
	"net"
)

// serverConnector implements the IServerConnector interface for TCP sockets
type serverConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IServerConnector)
// --------------------------------------------------------------------------

func (c *serverConnector) GetName() string {
	return "tcp"
}

func (c *serverConnector) Listen(config common.SessionConfig) (net.Listener, error) {
	listener, err := net.Listen("tcp", config.Endpoint())
	if err != nil {
		return nil, fmt.Errorf("failed to create TCP socket: %w", err)
	}
	return listener, nil
}

func (c *serverConnector) UpgradeConnection(conn net.Conn, config common.SessionConfig) error {
	return upgradeConnection(conn, config)
}

// --------------------------------------------------------------------------
// Server Transport Factory Method
// --------------------------------------------------------------------------

// NewTCPServerTransport creates a new TCP server transport
func NewTCPServerTransport() transport.IRPCServerTransport {
	return base.NewBaseServerTransport(&serverConnector{})
}
