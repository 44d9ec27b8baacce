package cmd

import (
	"context"
	"fmt"
	"github.com/Infopercept/opensearch-sdk-go/cmd/call"
	"github.com/Infopercept/opensearch-sdk-go/cmd/config"
	"github.com/Infopercept/opensearch-sdk-go/cmd/serve"
	"github.com/Infopercept/opensearch-sdk-go/cmd/util"
	"github.com/Infopercept/opensearch-sdk-go/rpc/protocol"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
	"os/signal"
	"syscall"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "osext",
		Short: "extension transport for OpenSearch",
		Long: fmt.Sprintf(`osext (v%s)

Serve and call extensions over the binary OpenSearch transport protocol:
length-prefixed frames on a single TCP or Unix socket, multiplexed by
request id in both directions.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of osext",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "osext v%s (transport protocol v%d)\n", Version, protocol.CurrentVersion)
		},
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(call.CallCmd)
	RootCmd.AddCommand(call.PingCmd)
	RootCmd.AddCommand(call.HealthCmd)
	RootCmd.AddCommand(config.ConfigCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "json", util.WrapString("serializer to use for typed payloads (json, gob, binary)"))
	key = "config"
	RootCmd.PersistentFlags().String(key, "", util.WrapString("TOML config file, flags and environment variables take precedence"))
	_ = viper.BindPFlags(RootCmd.PersistentFlags())
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := RootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
