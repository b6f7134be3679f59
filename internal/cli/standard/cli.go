package standard

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tchandler/eventworks/internal/cli/client"
)

// Version is stamped at build time with -ldflags "-X ...standard.Version=...".
var Version = "dev"

// Execute runs the Cobra-based CLI entry point.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ewctl",
		Short:         "Eventworks command-line interface",
		Long:          "ewctl publishes to, watches, and inspects channels and topics hosted by eventworksd.",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringP("api", "a", envOrDefault("EVENTWORKS_API_BASE", client.DefaultBaseURL), "eventworksd base URL")
	cmd.PersistentFlags().String("api-key", envOrDefault("EVENTWORKS_API_KEY", ""), "API key sent as "+apiKeyHeaderName)

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newPublishCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newChannelsCmd())
	cmd.AddCommand(newClearCmd())
	cmd.AddCommand(newAPICmd())
	cmd.AddCommand(newTUICmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the ewctl version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ewctl %s\n", Version)
		},
	}
}

const apiKeyHeaderName = "X-Eventworks-API-Key"

func clientFromCmd(cmd *cobra.Command) (*client.Client, error) {
	base, err := cmd.Root().PersistentFlags().GetString("api")
	if err != nil {
		base = envOrDefault("EVENTWORKS_API_BASE", client.DefaultBaseURL)
	}
	key, err := cmd.Root().PersistentFlags().GetString("api-key")
	if err != nil {
		key = envOrDefault("EVENTWORKS_API_KEY", "")
	}
	return client.New(base, client.WithAPIKey(key))
}
