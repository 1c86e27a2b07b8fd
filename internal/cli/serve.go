package cli

import (
	"github.com/spf13/cobra"

	"github.com/ehsaniara/ovdbridge/internal/modes"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge daemon",
		Long:  "Listen for remote sessions on the channel socket and serve the print and event channels until SIGINT or SIGTERM.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := opts.loadConfig()
			if err != nil {
				return err
			}

			log, closer, err := modes.NewLogger(cfg.Logging, "serve")
			if err != nil {
				return err
			}
			defer closer.Close()

			log.WithField("component", "main").Debug("configuration loaded", "path", path)
			return modes.RunServer(cfg, log)
		},
	}
}
