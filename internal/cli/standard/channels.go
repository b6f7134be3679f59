package standard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/spf13/cobra"

	"github.com/tchandler/eventworks/internal/cli/client"
	"github.com/tchandler/eventworks/internal/cli/openapiutil"
)

func newChannelsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "channels",
		Short: "List channels, topics and subscription counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			channels, err := api.ListChannels(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return encodeAsJSON(cmd.OutOrStdout(), channels)
			}
			printChannels(newPrinter(cmd.OutOrStdout()), channels)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the snapshot as JSON")
	return cmd
}

func printChannels(p printer, channels []client.ChannelStats) {
	if len(channels) == 0 {
		fmt.Fprintln(p.out, "No channels found")
		return
	}
	fmt.Fprintln(p.out, p.Header(fmt.Sprintf("%-24s %-24s %s", "CHANNEL", "TOPIC", "SUBSCRIPTIONS")))
	for _, ch := range channels {
		if len(ch.Topics) == 0 {
			fmt.Fprintf(p.out, "%-24s %-24s %s\n", ch.Name, p.Muted("-"), p.Muted("0"))
			continue
		}
		for _, topic := range ch.Topics {
			fmt.Fprintf(p.out, "%-24s %-24s %d\n", ch.Name, topic.Name, topic.Subscriptions)
		}
	}
}

func newClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear <channel> [topic]",
		Short: "Remove subscriptions from a topic, or from every topic of a channel",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			channel := channelArg(args[0])
			if len(args) == 2 {
				if err := api.ClearTopic(ctx, channel, args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s/%s\n", args[0], args[1])
				return nil
			}
			if err := api.ClearChannel(ctx, channel); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", args[0])
			return nil
		},
	}
	return cmd
}

func newAPICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "api",
		Short: "Inspect the daemon's OpenAPI document",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "ops",
		Short: "List API operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, err := fetchOperations(cmd)
			if err != nil {
				return err
			}
			p := newPrinter(cmd.OutOrStdout())
			fmt.Fprintln(p.out, p.Header(fmt.Sprintf("%-18s %-7s %s", "OPERATION", "METHOD", "PATH")))
			for _, op := range ops {
				fmt.Fprintf(p.out, "%-18s %-7s %s\n", op.OperationID, op.Method, op.Path)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "describe <operationId|METHOD:PATH>",
		Short: "Show one API operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := fetchDocument(cmd)
			if err != nil {
				return err
			}
			op, err := openapiutil.FindOperation(doc, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", op.Method, op.Path)
			if op.Summary != "" {
				fmt.Fprintf(out, "Summary: %s\n", op.Summary)
			}
			if len(op.Tags) > 0 {
				fmt.Fprintf(out, "Tags: %s\n", strings.Join(op.Tags, ", "))
			}
			for _, param := range op.Parameters {
				required := ""
				if param.Required {
					required = " (required)"
				}
				fmt.Fprintf(out, "  %s [%s]%s %s\n", param.Name, param.In, required, param.Description)
			}
			return nil
		},
	})
	return cmd
}

func fetchDocument(cmd *cobra.Command) (*openapi3.T, error) {
	api, err := clientFromCmd(cmd)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	data, err := api.OpenAPI(ctx)
	if err != nil {
		return nil, err
	}
	return openapiutil.ParseDocument(ctx, data)
}

func fetchOperations(cmd *cobra.Command) ([]openapiutil.Operation, error) {
	doc, err := fetchDocument(cmd)
	if err != nil {
		return nil, err
	}
	return openapiutil.ListOperations(doc), nil
}
