package standard

import (
	"github.com/spf13/cobra"

	"github.com/tchandler/eventworks/internal/cli/tui"
)

func newTUICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tui <channel> <topic>",
		Short: "Open a live console that streams and publishes events on a topic",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			return tui.Run(cmd.Context(), api, channelArg(args[0]), args[1])
		},
	}
}
