package standard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tchandler/eventworks/internal/cli/client"
)

func newPublishCmd() *cobra.Command {
	var dataFile string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "publish <channel> <topic> [payload]",
		Short: "Publish an event",
		Long: `Publish a JSON payload to a topic. Use "-" as the channel for the default
channel. The payload comes from the third argument, --data-file, or stdin when
--data-file is "-". Omit it to publish without a payload.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd.InOrStdin(), args, dataFile)
			if err != nil {
				return err
			}
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			event, err := api.Publish(ctx, channelArg(args[0]), args[1], payload)
			if err != nil {
				return err
			}
			if asJSON {
				return encodeAsJSON(cmd.OutOrStdout(), event)
			}
			p := newPrinter(cmd.OutOrStdout())
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", p.Accent("published"), event.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dataFile, "data-file", "d", "", `read the payload from a file ("-" for stdin)`)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the event envelope as JSON")
	return cmd
}

func readPayload(stdin io.Reader, args []string, dataFile string) (json.RawMessage, error) {
	var raw []byte
	switch {
	case len(args) == 3 && dataFile != "":
		return nil, errors.New("pass the payload as an argument or with --data-file, not both")
	case len(args) == 3:
		raw = []byte(args[2])
	case dataFile == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		raw = data
	case dataFile != "":
		data, err := os.ReadFile(dataFile)
		if err != nil {
			return nil, fmt.Errorf("read payload: %w", err)
		}
		raw = data
	}
	raw = []byte(strings.TrimSpace(string(raw)))
	if len(raw) == 0 {
		return nil, nil
	}
	if !json.Valid(raw) {
		return nil, errors.New("payload must be valid JSON")
	}
	return json.RawMessage(raw), nil
}

func newWatchCmd() *cobra.Command {
	var useWS bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "watch <channel> <topic>",
		Short: "Stream events published to a topic",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			out := cmd.OutOrStdout()
			p := newPrinter(out)
			handler := func(ev client.Event) {
				if asJSON {
					_ = json.NewEncoder(out).Encode(ev)
					return
				}
				payload := string(ev.Payload)
				if payload == "" {
					payload = p.Muted("(no payload)")
				}
				fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", p.Muted(ev.Timestamp.Format(time.RFC3339)), p.Accent(ev.Topic), ev.ID, payload)
			}

			if useWS {
				err = api.WatchWebSocket(ctx, channelArg(args[0]), args[1], handler)
			} else {
				err = api.Watch(ctx, channelArg(args[0]), args[1], handler)
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&useWS, "ws", false, "stream over WebSocket instead of SSE")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print one JSON envelope per line")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history <channel> <topic>",
		Short: "Show recently published events",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			entries, err := api.History(ctx, channelArg(args[0]), args[1], limit)
			if err != nil {
				return err
			}
			if asJSON {
				return encodeAsJSON(cmd.OutOrStdout(), entries)
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No events recorded")
				return nil
			}
			p := newPrinter(out)
			fmt.Fprintln(out, p.Header(fmt.Sprintf("%-25s %-36s %s", "PUBLISHED", "ID", "PAYLOAD")))
			for _, e := range entries {
				fmt.Fprintf(out, "%-25s %-36s %s\n", e.PublishedAt.Format(time.RFC3339), e.EventID, string(e.Payload))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of entries")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print entries as JSON")
	return cmd
}

// channelArg maps the CLI's "-" shorthand to the default channel.
func channelArg(raw string) string {
	if raw == "-" {
		return ""
	}
	return raw
}
