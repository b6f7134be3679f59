package standard

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tchandler/eventworks/internal/server/db/sqlite"
	"github.com/tchandler/eventworks/internal/server/eventbus/memory"
	"github.com/tchandler/eventworks/internal/server/httpapi"
	"github.com/tchandler/eventworks/pkg/eventworks"
)

func startDaemon(t *testing.T) (string, *eventworks.Registry) {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	registry := eventworks.New(eventworks.WithScheduler(eventworks.Synchronous()))
	bus := memory.New(registry)
	srv := httptest.NewServer(httpapi.New(httpapi.Options{Bus: bus, Store: store}))
	t.Cleanup(func() {
		srv.Close()
		_ = bus.Close(ctx)
		_ = store.Close(ctx)
	})
	return srv.URL, registry
}

func runCLI(t *testing.T, base string, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--api", base}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPublishAndHistoryCommands(t *testing.T) {
	base, registry := startDaemon(t)

	var seen []any
	registry.Channel("orders").Subscribe("created", func(_ any, payload any) { seen = append(seen, payload) })

	out, err := runCLI(t, base, "", "publish", "orders", "created", `{"id":1}`)
	if err != nil {
		t.Fatalf("publish: %v\n%s", err, out)
	}
	if !strings.HasPrefix(out, "published ") {
		t.Fatalf("unexpected publish output %q", out)
	}
	if len(seen) != 1 {
		t.Fatalf("subscriber saw %d events", len(seen))
	}

	if out, err := runCLI(t, base, `{"id":2}`, "publish", "orders", "created", "--data-file", "-"); err != nil {
		t.Fatalf("publish from stdin: %v\n%s", err, out)
	}

	out, err = runCLI(t, base, "", "history", "orders", "created", "--json")
	if err != nil {
		t.Fatalf("history: %v\n%s", err, out)
	}
	type order struct {
		ID int `json:"id"`
	}
	var entries []struct {
		Topic   string `json:"topic"`
		Payload order  `json:"payload"`
	}
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode history: %v\n%s", err, out)
	}
	var got []order
	for _, e := range entries {
		if e.Topic != "created" {
			t.Fatalf("unexpected topic %q in history", e.Topic)
		}
		got = append(got, e.Payload)
	}
	if diff := cmp.Diff([]order{{ID: 1}, {ID: 2}}, got); diff != "" {
		t.Fatalf("unexpected history (-want +got):\n%s\n%s", diff, out)
	}
}

func TestPublishRejectsBadPayload(t *testing.T) {
	base, _ := startDaemon(t)
	if _, err := runCLI(t, base, "", "publish", "orders", "created", "{oops"); err == nil {
		t.Fatalf("expected invalid JSON error")
	}
	if _, err := runCLI(t, base, "", "publish", "orders", "created", "1", "--data-file", "x.json"); err == nil {
		t.Fatalf("expected conflicting payload sources error")
	}
}

func TestChannelsAndClearCommands(t *testing.T) {
	base, registry := startDaemon(t)
	noop := func(any, any) {}
	registry.Channel("orders").Subscribe("created", noop)
	registry.Subscribe("ping", noop)

	out, err := runCLI(t, base, "", "channels")
	if err != nil {
		t.Fatalf("channels: %v", err)
	}
	for _, want := range []string{"CHANNEL", "orders", "created", eventworks.DefaultChannelName, "ping"} {
		if !strings.Contains(out, want) {
			t.Fatalf("channels output missing %q:\n%s", want, out)
		}
	}

	if _, err := runCLI(t, base, "", "clear", "-", "ping"); err != nil {
		t.Fatalf("clear topic: %v", err)
	}
	if _, err := runCLI(t, base, "", "clear", "orders"); err != nil {
		t.Fatalf("clear channel: %v", err)
	}
	for _, ch := range registry.Stats() {
		if len(ch.Topics) != 0 {
			t.Fatalf("channel %s still has topics: %+v", ch.Name, ch.Topics)
		}
	}
}

func TestAPICommands(t *testing.T) {
	base, _ := startDaemon(t)

	out, err := runCLI(t, base, "", "api", "ops")
	if err != nil {
		t.Fatalf("api ops: %v", err)
	}
	if !strings.Contains(out, "publishEvent") || !strings.Contains(out, "/ws/v1/channels/{channel}/topics/{topic}") {
		t.Fatalf("unexpected ops output:\n%s", out)
	}

	out, err = runCLI(t, base, "", "api", "describe", "listHistory")
	if err != nil {
		t.Fatalf("api describe: %v", err)
	}
	if !strings.Contains(out, "limit [query]") {
		t.Fatalf("unexpected describe output:\n%s", out)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "http://127.0.0.1:1", "", "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if strings.TrimSpace(out) != "ewctl "+Version {
		t.Fatalf("unexpected version output %q", out)
	}
}
