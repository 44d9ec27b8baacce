package call

import (
	"encoding/json"
	"fmt"
	"github.com/Infopercept/opensearch-sdk-go/cmd/util"
	"github.com/Infopercept/opensearch-sdk-go/rpc/client"
	"github.com/Infopercept/opensearch-sdk-go/rpc/transport"
	"github.com/spf13/cobra"
	"io"
	"os"
	"strings"
	"time"
)

var (
	rpcClient *client.Client

	// CallCmd executes an arbitrary action
	CallCmd = &cobra.Command{
		Use:               "call [action] [payload]",
		Short:             "Execute an action and print the response payload",
		Long:              "Execute an action against an extension or host. The payload is taken from the second argument, or from stdin if it is '-'.",
		Args:              cobra.RangeArgs(1, 2),
		PersistentPreRunE: setupClient,
		RunE:              runCall,
	}

	// PingCmd sends the built-in ping action
	PingCmd = &cobra.Command{
		Use:               "ping",
		Short:             "Ping an extension and print the round trip time",
		Args:              cobra.NoArgs,
		PersistentPreRunE: setupClient,
		RunE:              runPing,
	}

	// HealthCmd fetches the health report
	HealthCmd = &cobra.Command{
		Use:               "health",
		Short:             "Print the health report of an extension",
		Args:              cobra.NoArgs,
		PersistentPreRunE: setupClient,
		RunE:              runHealth,
	}

	callHeaders []string
	pingCount   int
)

func init() {
	for _, cmd := range []*cobra.Command{CallCmd, PingCmd, HealthCmd} {
		util.SetupClientFlags(cmd)
	}

	CallCmd.Flags().StringSliceVar(&callHeaders, "header", nil, util.WrapString("Thread context entries sent with the request (key=value, repeatable)"))
	PingCmd.Flags().IntVarP(&pingCount, "count", "c", 1, util.WrapString("Number of pings to send"))
}

// setupClient initializes the extension client
func setupClient(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	config := util.GetClientConfig()
	if err := config.Validate(); err != nil {
		return err
	}

	s, err := util.GetSerializer()
	if err != nil {
		return err
	}
	t, err := util.GetClientTransport()
	if err != nil {
		return err
	}

	rpcClient = client.NewClient(config, t, s)
	return nil
}

func runCall(cmd *cobra.Command, args []string) error {
	defer rpcClient.Close()

	var payload []byte
	if len(args) == 2 {
		if args[1] == "-" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("failed to read stdin: %w", err)
			}
			payload = data
		} else {
			payload = []byte(args[1])
		}
	}

	headers, err := parseHeaders(callHeaders)
	if err != nil {
		return err
	}

	resp, err := rpcClient.Execute(cmd.Context(), args[0], payload, transport.WithHeaders(headers))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(resp.Payload))
	return nil
}

func runPing(cmd *cobra.Command, _ []string) error {
	defer rpcClient.Close()

	for i := 0; i < pingCount; i++ {
		rtt, err := rpcClient.Ping(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pong from %s: seq=%d time=%s\n",
			rpcClient.Transport().Session().RemoteAddr(), i+1, rtt.Round(time.Microsecond))
	}
	return nil
}

func runHealth(cmd *cobra.Command, _ []string) error {
	defer rpcClient.Close()

	report, err := rpcClient.Health(cmd.Context())
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

// parseHeaders splits key=value pairs
func parseHeaders(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid header format: %s (expected key=value)", pair)
		}
		headers[key] = value
	}
	return headers, nil
}
