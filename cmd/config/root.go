package config

import (
	"fmt"
	"github.com/Infopercept/opensearch-sdk-go/cmd/util"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ConfigCmd prints the effective configuration
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as TOML",
	Long:  "Print the configuration resulting from defaults, the config file, environment variables and flags. The output can be used as a --config file.",
	Args:  cobra.NoArgs,
	RunE:  run,
}

func init() {
	util.SetupClientFlags(ConfigCmd)

	ConfigCmd.PersistentFlags().String("log-level", "info", util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
	ConfigCmd.PersistentFlags().String("log-file", "", util.WrapString("Write JSON logs to this rolling file in addition to stdout"))
	ConfigCmd.PersistentFlags().String("metrics-endpoint", "", util.WrapString("Address of the admin HTTP endpoint"))
}

func run(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	out, err := Render(viper.AllSettings())
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

// Render encodes the settings as TOML. The config file path itself is dropped.
func Render(settings map[string]any) (string, error) {
	delete(settings, "config")
	b, err := toml.Marshal(settings)
	if err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	return string(b), nil
}
