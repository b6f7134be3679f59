package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tchandler/eventworks/internal/server/eventbus"
	"github.com/tchandler/eventworks/pkg/eventworks"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	bus := New(eventworks.New(eventworks.WithScheduler(eventworks.Synchronous())))
	t.Cleanup(func() { _ = bus.Close(context.Background()) })
	return bus
}

func TestPublishReachesSubscribedChannel(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()

	ch := make(chan any, 2)
	unsubscribe, err := bus.Subscribe("orders", "created", ch)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := bus.Publish(ctx, "orders", "created", "o-1"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := bus.Publish(ctx, "other", "created", "o-2"); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-ch:
		if got != "o-1" {
			t.Fatalf("unexpected payload %v", got)
		}
	default:
		t.Fatalf("expected payload on subscribed channel")
	}
	if len(ch) != 0 {
		t.Fatalf("payload from another channel leaked")
	}

	unsubscribe()
	if err := bus.Publish(ctx, "orders", "created", "o-3"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(ch) != 0 {
		t.Fatalf("delivery after unsubscribe")
	}
	if stats := bus.Stats(); len(stats) != 2 {
		t.Fatalf("expected two channels in stats, got %+v", stats)
	}
}

func TestFullChannelDropsPayload(t *testing.T) {
	bus := newTestBus(t)
	ch := make(chan any, 1)
	if _, err := bus.Subscribe("", "tick", ch); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := bus.Publish(context.Background(), "", "tick", i); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	if got := <-ch; got != 0 {
		t.Fatalf("expected first payload to be kept, got %v", got)
	}
}

func TestClearTopicAndChannel(t *testing.T) {
	bus := newTestBus(t)
	a, b := make(chan any, 1), make(chan any, 1)
	if _, err := bus.Subscribe("c", "a", a); err != nil {
		t.Fatalf("subscribe a: %v", err)
	}
	if _, err := bus.Subscribe("c", "b", b); err != nil {
		t.Fatalf("subscribe b: %v", err)
	}

	bus.ClearTopic("c", "a")
	_ = bus.Publish(context.Background(), "c", "a", 1)
	_ = bus.Publish(context.Background(), "c", "b", 2)
	if len(a) != 0 || len(b) != 1 {
		t.Fatalf("clear topic affected the wrong topic: a=%d b=%d", len(a), len(b))
	}

	<-b
	bus.ClearChannel("c")
	_ = bus.Publish(context.Background(), "c", "b", 3)
	if len(b) != 0 {
		t.Fatalf("clear channel left subscriptions behind")
	}
}

func TestSubscribeValidation(t *testing.T) {
	bus := newTestBus(t)
	if _, err := bus.Subscribe("c", "t", nil); err == nil {
		t.Fatalf("expected error for nil channel")
	}
	if _, err := bus.Subscribe("c", "", make(chan any)); err == nil {
		t.Fatalf("expected error for empty topic")
	}
}

func TestClosedBus(t *testing.T) {
	bus := New(eventworks.New())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := bus.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := bus.Publish(ctx, "", "t", nil); !errors.Is(err, eventbus.ErrClosed) {
		t.Fatalf("expected ErrClosed from publish, got %v", err)
	}
	if _, err := bus.Subscribe("", "t", make(chan any, 1)); !errors.Is(err, eventbus.ErrClosed) {
		t.Fatalf("expected ErrClosed from subscribe, got %v", err)
	}
	if err := bus.Close(ctx); !errors.Is(err, eventbus.ErrClosed) {
		t.Fatalf("expected ErrClosed on double close, got %v", err)
	}
}

func TestPublishHonoursContext(t *testing.T) {
	bus := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := bus.Publish(ctx, "", "t", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
