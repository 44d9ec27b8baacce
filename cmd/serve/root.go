package serve

import (
	"context"
	"errors"
	"fmt"
	cmdUtil "github.com/Infopercept/opensearch-sdk-go/cmd/util"
	"github.com/Infopercept/opensearch-sdk-go/rpc/common"
	"github.com/Infopercept/opensearch-sdk-go/rpc/metrics"
	"github.com/Infopercept/opensearch-sdk-go/rpc/server"
	"github.com/Infopercept/opensearch-sdk-go/rpc/transport"
	"github.com/spf13/cobra"
	"net/http"
	"os"
	"time"
)

// EchoAction is served in addition to the built-in actions
const EchoAction = "echo"

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start an extension server",
		Long:    `Start an extension server answering the built-in ping and health actions and an echo action. The configuration can be set via command line flags, environment variables or a TOML config file. The format of the environment variables is OSEXT_<flag> (e.g. OSEXT_DRAIN_TIMEOUT=10s)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	cmdUtil.SetupSessionFlags(ServeCmd)

	key := "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	key = "log-file"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Write JSON logs to this rolling file in addition to stdout"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Address of the admin HTTP endpoint serving /metrics and /health (e.g. 127.0.0.1:9600), empty disables it"))
}

// processConfig reads the configuration from the command line flags and environment variables
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}
	*serveCmdConfig = cmdUtil.GetServerConfig()
	if serveCmdConfig.Session.NodeName == "" {
		serveCmdConfig.Session.NodeName, _ = os.Hostname()
	}
	return serveCmdConfig.Validate()
}

// run starts the extension server
func run(cmd *cobra.Command, _ []string) error {
	if err := common.InitLoggers(serveCmdConfig.LogLevel, serveCmdConfig.LogFile); err != nil {
		return err
	}

	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}
	t, err := cmdUtil.GetServerTransport()
	if err != nil {
		return err
	}

	serv := server.NewServer(*serveCmdConfig, t, s)
	if err := serv.Register(EchoAction, func(_ context.Context, req *transport.Request) ([]byte, error) {
		return req.Payload, nil
	}); err != nil {
		return err
	}

	observer := metrics.NewObserver()
	serv.SetObserver(observer)
	serv.Health().RegisterCheck("connections")
	serv.Lifecycle().AddListener(server.StateListenerFunc(func(_, to server.State) {
		if to == server.StateStopped {
			observer.LogSnapshot()
		}
	}))

	// canceled on SIGINT and SIGTERM, see cmd.Execute
	ctx := cmd.Context()

	if endpoint := serveCmdConfig.MetricsEndpoint; endpoint != "" {
		admin := &http.Server{
			Addr:              endpoint,
			Handler:           newAdminRouter(observer, serv.Health()),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			server.Logger.Infof("Admin endpoint listening on %s", endpoint)
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				server.Logger.Errorf("Admin endpoint failed: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = admin.Shutdown(shutdownCtx)
		}()
	}

	go reportConnections(ctx, serv)

	if err := serv.Serve(ctx); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	return nil
}

// reportConnections keeps the connections health check current
func reportConnections(ctx context.Context, serv *server.Server) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions := serv.Sessions()
			pending := 0
			for _, s := range sessions {
				pending += s.Pending()
			}
			_ = serv.Health().UpdateCheck("connections", server.Healthy, fmt.Sprintf("%d open", len(sessions)))
			_ = serv.Health().AddDetail("connections", "pending_requests", fmt.Sprintf("%d", pending))
		}
	}
}
