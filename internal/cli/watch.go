package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/ehsaniara/ovdbridge/pkg/constants"
)

type watchOptions struct {
	create bool
	once   bool
}

func newWatchCmd() *cobra.Command {
	opts := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch <fifo>",
		Short: "Print the spool file of every finished job",
		Long:  "Reference consumer for the printer FIFO: prints one spool path per line as jobs complete.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if opts.create {
				if err := unix.Mkfifo(path, constants.FIFOMode); err != nil && !errors.Is(err, unix.EEXIST) {
					return fmt.Errorf("failed to create fifo %s: %w", path, err)
				}
			}

			info, err := os.Stat(path)
			if err != nil {
				return err
			}
			if info.Mode()&os.ModeNamedPipe == 0 {
				return fmt.Errorf("%s is not a fifo", path)
			}

			// O_RDWR keeps a writer attached, so the read side sees no EOF
			// when a printer device closes its end
			f, err := os.OpenFile(path, os.O_RDWR, 0)
			if err != nil {
				return fmt.Errorf("failed to open fifo: %w", err)
			}
			defer f.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			stop := context.AfterFunc(ctx, func() { _ = f.Close() })
			defer stop()

			return watchNotifications(f, cmd.OutOrStdout(), opts.once)
		},
	}

	cmd.Flags().BoolVar(&opts.create, "create", false, "Create the fifo if it does not exist")
	cmd.Flags().BoolVar(&opts.once, "once", false, "Exit after the first notification")
	return cmd
}

// watchNotifications prints every NUL-terminated message from r on its
// own line until r ends.
func watchNotifications(r io.Reader, w io.Writer, once bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Split(scanNUL)
	for scanner.Scan() {
		if _, err := fmt.Fprintln(w, scanner.Text()); err != nil {
			return err
		}
		if once {
			return nil
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}

func scanNUL(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, 0); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		// unterminated trailing message
		return len(data), data, nil
	}
	return 0, nil, nil
}
