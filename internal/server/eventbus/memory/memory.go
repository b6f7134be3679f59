// Copyright (c) 2025 HYPR. PTE. LTD.
//
// Business Source License 1.1
// See LICENSE file in the project root for details.

package memory

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/tchandler/eventworks/internal/server/eventbus"
	"github.com/tchandler/eventworks/pkg/eventworks"
)

// Bus adapts an eventworks.Registry to eventbus.Bus.
type Bus struct {
	registry *eventworks.Registry
	closed   atomic.Bool
}

var _ eventbus.Bus = (*Bus)(nil)

// New creates a Bus that owns registry.
func New(registry *eventworks.Registry) *Bus {
	return &Bus{registry: registry}
}

// Publish fans payload out to the topic's subscribers.
func (b *Bus) Publish(ctx context.Context, channel, topic string, payload any) error {
	if b.closed.Load() {
		return eventbus.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.registry.Channel(channel).Publish(topic, payload)
	return nil
}

// Subscribe forwards payloads on topic to ch. Deliveries to a full ch are
// dropped.
func (b *Bus) Subscribe(channel, topic string, ch chan<- any) (func(), error) {
	if ch == nil {
		return nil, errors.New("eventbus: channel must not be nil")
	}
	if topic == "" {
		return nil, errors.New("eventbus: topic must not be empty")
	}
	if b.closed.Load() {
		return nil, eventbus.ErrClosed
	}
	var sub *eventworks.Subscription
	b.registry.Channel(channel).Subscribe(topic, func(_ any, payload any) {
		select {
		case ch <- payload:
		default:
		}
	}, eventworks.Capture(&sub))
	if sub == nil {
		return nil, eventbus.ErrClosed
	}
	return sub.Unsubscribe, nil
}

// ClearTopic removes every subscription on topic.
func (b *Bus) ClearTopic(channel, topic string) {
	b.registry.Channel(channel).Unsubscribe(eventworks.Match(topic))
}

// ClearChannel removes every subscription on channel.
func (b *Bus) ClearChannel(channel string) {
	b.registry.Channel(channel).Unsubscribe()
}

// Stats reports the registry's channels and topics.
func (b *Bus) Stats() []eventworks.ChannelStats {
	return b.registry.Stats()
}

// Close shuts the registry down after queued deliveries drain.
func (b *Bus) Close(ctx context.Context) error {
	if !b.closed.CompareAndSwap(false, true) {
		return eventbus.ErrClosed
	}
	return b.registry.Close(ctx)
}
