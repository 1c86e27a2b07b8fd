package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ehsaniara/ovdbridge/pkg/config"
	"github.com/ehsaniara/ovdbridge/pkg/logger"
	"github.com/ehsaniara/ovdbridge/pkg/version"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

// NewRootCmd builds the ovdbridge command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "ovdbridge",
		Short:         "Virtual printer and event channel bridge for remote desktop sessions",
		Long:          "ovdbridge terminates the print and event virtual channels of remote desktop sessions: print jobs are spooled to disk and announced on a FIFO, application events are relayed over a local websocket.",
		Version:       version.GetShortVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"Path to configuration file (searches common locations if not specified)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "",
		"Override the configured log level (DEBUG, INFO, WARN, ERROR)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newPrintCmd(opts))
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newHexCmd())
	cmd.AddCommand(newStatusCmd(opts))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig loads the configuration and applies the flag overrides.
func (o *rootOptions) loadConfig() (*config.Config, string, error) {
	cfg, path, err := config.Load(o.configPath)
	if err != nil {
		return nil, "", err
	}
	if o.logLevel != "" {
		if _, err := logger.ParseLevel(o.logLevel); err != nil {
			return nil, "", err
		}
		cfg.Logging.Level = o.logLevel
	}
	return cfg, path, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), version.GetLongVersion())
		},
	}
}
