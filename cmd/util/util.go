package util

import (
	"fmt"
	"github.com/Infopercept/opensearch-sdk-go/rpc/common"
	"github.com/Infopercept/opensearch-sdk-go/rpc/serializer"
	"github.com/Infopercept/opensearch-sdk-go/rpc/transport"
	"github.com/Infopercept/opensearch-sdk-go/rpc/transport/tcp"
	"github.com/Infopercept/opensearch-sdk-go/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"strings"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is prepended to every environment variable, e.g. OSEXT_PORT
	EnvPrefix = "osext"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// --------------------------------------------------------------------------
// Flags
// --------------------------------------------------------------------------

// SetupSessionFlags adds the connection flags shared by server and client commands
func SetupSessionFlags(cmd *cobra.Command) {
	d := common.DefaultSessionConfig()
	flags := cmd.PersistentFlags()

	flags.String("network", d.Network, WrapString("Network of the endpoint (tcp, unix)"))
	flags.String("host", d.Host, WrapString("Host to listen on or connect to"))
	flags.Int("port", d.Port, WrapString("Port to listen on or connect to"))
	flags.String("socket-path", "/tmp/osext.sock", WrapString("Path of the unix socket (only for network unix)"))

	flags.Int("max-frame-size", d.MaxFrameSize, WrapString("Largest accepted payload in bytes"))
	flags.Int("max-header-size", d.MaxHeaderSize, WrapString("Largest accepted encoded header in bytes"))

	flags.Duration("timeout", d.DefaultTimeout, WrapString("Default timeout of a request"))
	flags.Duration("handshake-timeout", d.HandshakeTimeout, WrapString("Time allowed for the handshake of a new connection"))
	flags.Duration("drain-timeout", d.DrainTimeout, WrapString("Time running handlers get to finish when a connection closes"))
	flags.Duration("write-timeout", d.WriteTimeout, WrapString("Deadline for writing a single frame (0 disables it)"))
	flags.Int("max-inflight", d.MaxInflightHandlers, WrapString("Concurrently running handlers per connection, requests beyond are rejected (0 for unbounded)"))

	flags.String("node-name", "", WrapString("Node name announced during the handshake"))
	flags.StringSlice("features", nil, WrapString("Comma-separated features announced during the handshake"))

	flags.Bool("tcp-nodelay", d.TCPConf.NoDelay, WrapString("Whether to enable TCP_NODELAY (only for tcp)"))
	flags.Int("tcp-keepalive", d.TCPConf.KeepAliveSec, WrapString("The keepalive interval in seconds (only for tcp)"))
	flags.Int("tcp-linger", d.TCPConf.LingerSec, WrapString("The linger time in seconds, negative keeps the OS default (only for tcp)"))
	flags.Int("write-buffer", 0, WrapString("Size of the socket write buffer in KB (0 keeps the OS default)"))
	flags.Int("read-buffer", 0, WrapString("Size of the socket read buffer in KB (0 keeps the OS default)"))
}

// SetupClientFlags adds the session flags plus retry and breaker settings
func SetupClientFlags(cmd *cobra.Command) {
	SetupSessionFlags(cmd)
	d := common.DefaultClientConfig()
	flags := cmd.PersistentFlags()

	flags.Int("retry-max-attempts", d.RetryMaxAttempts, WrapString("How many times a request is tried"))
	flags.Duration("retry-initial-backoff", d.RetryInitialBackoff, WrapString("Wait before the first retry"))
	flags.Duration("retry-max-backoff", d.RetryMaxBackoff, WrapString("Upper bound of the wait between retries"))
	flags.Float64("retry-multiplier", d.RetryMultiplier, WrapString("Growth factor of the wait between retries"))
	flags.Bool("retry-jitter", d.RetryJitter, WrapString("Whether to randomize the wait between retries"))
	flags.Int("breaker-failure-threshold", d.BreakerFailureThreshold, WrapString("Consecutive connection failures that open the circuit breaker"))
	flags.Int("breaker-success-threshold", d.BreakerSuccessThreshold, WrapString("Successful probes that close the circuit breaker again"))
	flags.Duration("breaker-open-timeout", d.BreakerOpenTimeout, WrapString("Time the circuit breaker stays open before probing"))
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// --------------------------------------------------------------------------
// Config
// --------------------------------------------------------------------------

// InitConfig loads .env files, environment variables and the optional
// TOML config file given by --config
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	if file := viper.GetString("config"); file != "" {
		viper.SetConfigFile(file)
		viper.SetConfigType("toml")
		if err := viper.ReadInConfig(); err != nil {
			cobra.CheckErr(fmt.Errorf("failed to read config file %s: %w", file, err))
		}
	}
}

// GetSessionConfig reads the session configuration from viper
func GetSessionConfig() common.SessionConfig {
	return common.SessionConfig{
		Network:             viper.GetString("network"),
		Host:                viper.GetString("host"),
		Port:                viper.GetInt("port"),
		SocketPath:          viper.GetString("socket-path"),
		MaxFrameSize:        viper.GetInt("max-frame-size"),
		MaxHeaderSize:       viper.GetInt("max-header-size"),
		DefaultTimeout:      viper.GetDuration("timeout"),
		HandshakeTimeout:    viper.GetDuration("handshake-timeout"),
		DrainTimeout:        viper.GetDuration("drain-timeout"),
		WriteTimeout:        viper.GetDuration("write-timeout"),
		MaxInflightHandlers: viper.GetInt("max-inflight"),
		NodeName:            viper.GetString("node-name"),
		Features:            viper.GetStringSlice("features"),
		TCPConf: common.TCPConf{
			NoDelay:      viper.GetBool("tcp-nodelay"),
			KeepAliveSec: viper.GetInt("tcp-keepalive"),
			LingerSec:    viper.GetInt("tcp-linger"),
		},
		SocketConf: common.SocketConf{
			WriteBufferSize: viper.GetInt("write-buffer") * 1024,
			ReadBufferSize:  viper.GetInt("read-buffer") * 1024,
		},
	}
}

// GetServerConfig reads the server configuration from viper
func GetServerConfig() common.ServerConfig {
	return common.ServerConfig{
		Session:         GetSessionConfig(),
		LogLevel:        viper.GetString("log-level"),
		LogFile:         viper.GetString("log-file"),
		MetricsEndpoint: viper.GetString("metrics-endpoint"),
	}
}

// GetClientConfig reads the client configuration from viper
func GetClientConfig() common.ClientConfig {
	return common.ClientConfig{
		Session:                 GetSessionConfig(),
		RetryMaxAttempts:        viper.GetInt("retry-max-attempts"),
		RetryInitialBackoff:     viper.GetDuration("retry-initial-backoff"),
		RetryMaxBackoff:         viper.GetDuration("retry-max-backoff"),
		RetryMultiplier:         viper.GetFloat64("retry-multiplier"),
		RetryJitter:             viper.GetBool("retry-jitter"),
		BreakerFailureThreshold: viper.GetInt("breaker-failure-threshold"),
		BreakerSuccessThreshold: viper.GetInt("breaker-success-threshold"),
		BreakerOpenTimeout:      viper.GetDuration("breaker-open-timeout"),
	}
}

// GetSerializer creates a serializer based on configuration
func GetSerializer() (serializer.IRPCSerializer, error) {
	return serializer.ByName(viper.GetString("serializer"))
}

// GetClientTransport creates the client transport matching the network
func GetClientTransport() (transport.IRPCClientTransport, error) {
	switch viper.GetString("network") {
	case "tcp":
		return tcp.NewTCPClientTransport(), nil
	case "unix":
		return unix.NewUnixClientTransport(), nil
	default:
		return nil, fmt.Errorf("invalid network %s", viper.GetString("network"))
	}
}

// GetServerTransport creates the server transport matching the network
func GetServerTransport() (transport.IRPCServerTransport, error) {
	switch viper.GetString("network") {
	case "tcp":
		return tcp.NewTCPServerTransport(), nil
	case "unix":
		return unix.NewUnixServerTransport(), nil
	default:
		return nil, fmt.Errorf("invalid network %s", viper.GetString("network"))
	}
}
