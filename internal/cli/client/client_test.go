package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/tchandler/eventworks/internal/server/db/sqlite"
	"github.com/tchandler/eventworks/internal/server/eventbus/memory"
	"github.com/tchandler/eventworks/internal/server/httpapi"
	"github.com/tchandler/eventworks/pkg/eventworks"
)

func newDaemon(t *testing.T, apiKey string) (*Client, *eventworks.Registry) {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	registry := eventworks.New(eventworks.WithScheduler(eventworks.Synchronous()))
	bus := memory.New(registry)
	srv := httptest.NewServer(httpapi.New(httpapi.Options{Bus: bus, Store: store, APIKey: apiKey}))
	t.Cleanup(func() {
		srv.Close()
		_ = bus.Close(ctx)
		_ = store.Close(ctx)
	})

	api, err := New(srv.URL, WithAPIKey(apiKey))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return api, registry
}

func TestPublishHistoryAndChannels(t *testing.T) {
	api, registry := newDaemon(t, "k")
	ctx := context.Background()

	received := 0
	registry.Channel("orders").Subscribe("created", func(any, any) { received++ })

	event, err := api.Publish(ctx, "orders", "created", json.RawMessage(`{"id":1}`))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if event.ID == "" || received != 1 {
		t.Fatalf("publish not delivered: %+v received=%d", event, received)
	}

	history, err := api.History(ctx, "orders", "created", 5)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].EventID != event.ID {
		t.Fatalf("unexpected history %+v", history)
	}

	channels, err := api.ListChannels(ctx)
	if err != nil {
		t.Fatalf("channels: %v", err)
	}
	if len(channels) != 1 || channels[0].Name != "orders" {
		t.Fatalf("unexpected channels %+v", channels)
	}

	if err := api.ClearTopic(ctx, "orders", "created"); err != nil {
		t.Fatalf("clear topic: %v", err)
	}
	registry.Channel("orders").Publish("created", nil)
	if received != 1 {
		t.Fatalf("subscription survived clear")
	}
}

func TestPublishRejectsInvalidPayloadLocally(t *testing.T) {
	api, _ := newDaemon(t, "")
	if _, err := api.Publish(context.Background(), "orders", "created", json.RawMessage(`{`)); err == nil {
		t.Fatalf("expected error for invalid JSON")
	}
}

func TestAPIErrorsCarryStatus(t *testing.T) {
	api, _ := newDaemon(t, "right")
	wrong, err := New(api.baseURL.String(), WithAPIKey("wrong"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = wrong.ListChannels(context.Background())
	if !IsStatus(err, http.StatusUnauthorized) {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestWatchStreams(t *testing.T) {
	for name, watch := range map[string]func(*Client, context.Context, func(Event)) error{
		"sse": func(c *Client, ctx context.Context, h func(Event)) error {
			return c.Watch(ctx, "", "ticks", h)
		},
		"websocket": func(c *Client, ctx context.Context, h func(Event)) error {
			return c.WatchWebSocket(ctx, "", "ticks", h)
		},
	} {
		t.Run(name, func(t *testing.T) {
			api, registry := newDaemon(t, "")
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			timeout := time.After(5 * time.Second)

			got := make(chan Event, 1)
			done := make(chan error, 1)
			go func() {
				done <- watch(api, ctx, func(ev Event) {
					select {
					case got <- ev:
					default:
					}
				})
			}()

			// Publish until the stream has subscribed and relayed one event.
			ticker := time.NewTicker(20 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case ev := <-got:
					if ev.Topic != "ticks" {
						t.Fatalf("unexpected event %+v", ev)
					}
					cancel()
					if err := <-done; err != nil && err != context.Canceled {
						t.Fatalf("watch returned %v", err)
					}
					return
				case <-ticker.C:
					registry.Publish("ticks", 1)
				case <-timeout:
					t.Fatalf("no event received")
				}
			}
		})
	}
}

func TestNewRejectsBadScheme(t *testing.T) {
	if _, err := New("ftp://example.com"); err == nil {
		t.Fatalf("expected scheme error")
	}
	c, err := New("")
	if err != nil {
		t.Fatalf("default url: %v", err)
	}
	if c.baseURL.String() != DefaultBaseURL {
		t.Fatalf("unexpected default %s", c.baseURL)
	}
}
