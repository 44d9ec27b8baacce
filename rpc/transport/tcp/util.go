package tcp

import (
	"github.com/Infopercept/opensearch-sdk-go/rpc/common"
	"net"
	"time"
)

// upgradeConnection applies performance optimizations to a TCP connection
// using configuration values from TCPConf and SocketConf
func upgradeConnection(conn net.Conn, config common.SessionConfig) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil // Not a TCP connection, nothing to upgrade
	}

	// Disable Nagle's algorithm if configured
	if err := tcpConn.SetNoDelay(config.TCPConf.NoDelay); err != nil {
		return err
	}

	// Set socket write buffer size if configured
	if config.SocketConf.WriteBufferSize > 0 {
		if err := tcpConn.SetWriteBuffer(config.SocketConf.WriteBufferSize); err != nil {
			return err
		}
	}

	// Set socket read buffer size if configured
	if config.SocketConf.ReadBufferSize > 0 {
		if err := tcpConn.SetReadBuffer(config.SocketConf.ReadBufferSize); err != nil {
			return err
		}
	}

	// Enable TCP keep-alive if configured
	if config.TCPConf.KeepAliveSec > 0 {
		if err := tcpConn.SetKeepAlive(true); err != nil {
			return err
		}
		keepAlivePeriod := time.Duration(config.TCPConf.KeepAliveSec) * time.Second
		if err := tcpConn.SetKeepAlivePeriod(keepAlivePeriod); err != nil {
			return err
		}
	}

	// Set TCP linger option if configured
	if config.TCPConf.LingerSec >= 0 {
		if err := tcpConn.SetLinger(config.TCPConf.LingerSec); err != nil {
			return err
		}
	}

	return nil
}
