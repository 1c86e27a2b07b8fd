package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ehsaniara/ovdbridge/internal/bridge/health"
	"github.com/ehsaniara/ovdbridge/internal/bridge/printer"
	"github.com/ehsaniara/ovdbridge/pkg/client"
	"github.com/ehsaniara/ovdbridge/pkg/config"
	"github.com/ehsaniara/ovdbridge/pkg/constants"
)

func newStatusCmd(root *rootOptions) *cobra.Command {
	var socket string

	cmd := &cobra.Command{
		Use:   "status [printer...]",
		Short: "Query the health service of a running bridge",
		Long:  "Show the serving status of the bridge and of each printer. Without arguments the configured printers are queried.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := root.loadConfig()
			if err != nil {
				return err
			}
			if socket == "" {
				socket = cfg.Server.HealthSocket
			}
			if socket == "" {
				return fmt.Errorf("health service is disabled in the configuration")
			}

			names := args
			if len(names) == 0 {
				names = configuredPrinters(cfg.Printer)
			}

			hc, err := client.NewHealthClientUnix(socket)
			if err != nil {
				return err
			}
			defer hc.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), constants.DefaultTimeout*time.Second)
			defer cancel()

			return printStatus(ctx, hc, names, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&socket, "socket", "", "Health socket (defaults to the configured one)")
	return cmd
}

type statusChecker interface {
	Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error)
}

func printStatus(ctx context.Context, hc statusChecker, printers []string, out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SERVICE\tSTATUS")

	services := []string{health.ServiceName}
	for _, name := range printers {
		services = append(services, health.PrinterService(name))
	}
	for _, service := range services {
		status, err := hc.Check(ctx, service)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\n", service, status)
	}
	return w.Flush()
}

func configuredPrinters(cfg config.PrinterConfig) []string {
	if len(cfg.Devices) == 0 {
		if cfg.Enumerate {
			return []string{printer.BuiltinPrinterName}
		}
		return nil
	}
	names := make([]string, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		names = append(names, d.Name)
	}
	return names
}
