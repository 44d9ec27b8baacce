package unix

import (
	"fmt"
	"github.com/Infopercept/opensearch-sdk-go/rpc/common"
	"github.com/Infopercept/opensearch-sdk-go/rpc/transport"
	"github.com/Infopercept/opensearch-sdk-go/rpc/transport/base"
	"net"
	"os"
)

// serverConnector implements the IServerConnector interface for Unix sockets
type serverConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IServerConnector)
// --------------------------------------------------------------------------

func (c *serverConnector) GetName() string {
	return "unix"
}

func (c *serverConnector) Listen(config common.SessionConfig) (net.Listener, error) {
	socketPath := config.Endpoint()

	// Remove existing socket file if it exists
	if err := os.RemoveAll(socketPath); err != nil {
		return nil, fmt.Errorf("failed to remove existing socket: %w", err)
	}

	// Create Unix socket listener
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create Unix socket: %w", err)
	}

	return listener, nil
}

func (c *serverConnector) UpgradeConnection(conn net.Conn, config common.SessionConfig) error {
	return upgradeConnection(conn, config)
}

// --------------------------------------------------------------------------
// Server Transport Factory Method
// --------------------------------------------------------------------------

// NewUnixServerTransport creates a new Unix server transport
func NewUnixServerTransport() transport.IRPCServerTransport {
	return base.NewBaseServerTransport(&serverConnector{})
}

// upgradeConnection applies the socket buffer sizes to a Unix connection
func upgradeConnection(conn net.Conn, config common.SessionConfig) error {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return nil
	}
	if config.SocketConf.WriteBufferSize > 0 {
		if err := unixConn.SetWriteBuffer(config.SocketConf.WriteBufferSize); err != nil {
			return err
		}
	}
	if config.SocketConf.ReadBufferSize > 0 {
		if err := unixConn.SetReadBuffer(config.SocketConf.ReadBufferSize); err != nil {
			return err
		}
	}
	return nil
}
