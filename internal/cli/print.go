package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ehsaniara/ovdbridge/internal/bridge/channel"
	"github.com/ehsaniara/ovdbridge/internal/bridge/rdpdr"
	"github.com/ehsaniara/ovdbridge/pkg/constants"
)

type printOptions struct {
	socket    string
	printer   string
	jobID     uint32
	chunkSize int
	timeout   time.Duration
}

func newPrintCmd(root *rootOptions) *cobra.Command {
	opts := &printOptions{}

	cmd := &cobra.Command{
		Use:   "print <file>",
		Short: "Send a file through the print channel as one job",
		Long:  "Act as the remote session: connect to the channel socket, create a print job, write the file in chunks and close the job.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.socket == "" {
				cfg, _, err := root.loadConfig()
				if err != nil {
					return err
				}
				opts.socket = cfg.Server.ChannelSocket
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open document: %w", err)
			}
			defer f.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			c, err := channel.Dial(ctx, opts.socket, 0)
			if err != nil {
				return err
			}
			defer c.Close()

			reply, err := sendPrintJob(ctx, c, opts, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %d spooled to %s (%d bytes)\n", reply.JobID, reply.Detail, reply.BytesWritten)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.socket, "socket", "", "Channel socket (defaults to the configured one)")
	cmd.Flags().StringVarP(&opts.printer, "printer", "p", "", "Printer name (defaults to the default printer)")
	cmd.Flags().Uint32Var(&opts.jobID, "job-id", 1, "Job id")
	cmd.Flags().IntVar(&opts.chunkSize, "chunk-size", constants.DefaultChunkSize, "Bytes per write request")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", constants.DefaultTimeout*time.Second, "Overall time limit")
	return cmd
}

// sendPrintJob runs create, write and close for one document and returns
// the close reply.
func sendPrintJob(ctx context.Context, c *channel.Client, opts *printOptions, r io.Reader) (*rdpdr.Message, error) {
	if opts.chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", opts.chunkSize)
	}
	if err := c.Open(ctx, rdpdr.ChannelName); err != nil {
		return nil, err
	}

	call := func(req *rdpdr.Message) (*rdpdr.Message, error) {
		req.Printer = opts.printer
		req.JobID = opts.jobID
		if err := c.Send(ctx, rdpdr.ChannelName, req.Marshal()); err != nil {
			return nil, err
		}
		reply, err := awaitReply(ctx, c)
		if err != nil {
			return nil, err
		}
		if reply.Status != rdpdr.StatusOK {
			return reply, fmt.Errorf("%s refused: %s: %s", req.Op, reply.Status, reply.Detail)
		}
		return reply, nil
	}

	if _, err := call(&rdpdr.Message{Op: rdpdr.OpCreate}); err != nil {
		return nil, err
	}

	buf := make([]byte, opts.chunkSize)
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			if _, err := call(&rdpdr.Message{Op: rdpdr.OpWrite, Data: buf[:n]}); err != nil {
				_, _ = call(&rdpdr.Message{Op: rdpdr.OpClose})
				return nil, err
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			_, _ = call(&rdpdr.Message{Op: rdpdr.OpClose})
			return nil, fmt.Errorf("failed to read document: %w", readErr)
		}
	}

	return call(&rdpdr.Message{Op: rdpdr.OpClose})
}

// awaitReply skips printer announcements until the next reply arrives.
func awaitReply(ctx context.Context, c *channel.Client) (*rdpdr.Message, error) {
	for {
		f, err := c.Recv(ctx)
		if err != nil {
			return nil, err
		}
		if f.Channel != rdpdr.ChannelName {
			continue
		}
		if f.Kind == channel.KindTerminate {
			return nil, fmt.Errorf("print channel refused by the bridge")
		}
		m, err := rdpdr.UnmarshalMessage(f.Data)
		if err != nil {
			return nil, err
		}
		if m.Op == rdpdr.OpReply {
			return m, nil
		}
	}
}
