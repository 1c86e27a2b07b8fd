package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ehsaniara/ovdbridge/internal/bridge/ovdapp"
)

func newHexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hex",
		Short: "Encode and decode event channel payloads",
	}
	cmd.AddCommand(newHexEncodeCmd())
	cmd.AddCommand(newHexDecodeCmd())
	return cmd
}

func newHexEncodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encode [text]",
		Short: "Hex-encode text, or stdin when no argument is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := argOrStdin(cmd, args)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ovdapp.Encode(data))
			return nil
		},
	}
}

func newHexDecodeCmd() *cobra.Command {
	var terminate bool
	cmd := &cobra.Command{
		Use:   "decode [hex]",
		Short: "Decode a hex payload, or stdin when no argument is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := argOrStdin(cmd, args)
			if err != nil {
				return err
			}
			s := strings.TrimSpace(string(data))

			decode := ovdapp.Decode
			if terminate {
				decode = ovdapp.Outgoing
			}
			b, err := decode(s)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
	cmd.Flags().BoolVar(&terminate, "terminate", false, "Append the zero byte sent to the remote session")
	return cmd
}

func argOrStdin(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 1 {
		return []byte(args[0]), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return nil, fmt.Errorf("failed to read stdin: %w", err)
	}
	return data, nil
}
