// Copyright (c) 2025 HYPR. PTE. LTD.
//
// Business Source License 1.1
// See LICENSE file in the project root for details.

package eventworks

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
)

// DefaultChannelName is the reserved name of the channel used when no
// channel name is given.
const DefaultChannelName = "__global__"

// Registry is one isolated universe of channels. Types that embed *Registry
// gain Channel, Publish, Subscribe and Unsubscribe.
type Registry struct {
	scheduler Scheduler
	logger    *slog.Logger
	observer  Observer

	mu       sync.Mutex
	channels map[string]*channel
	closed   atomic.Bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithScheduler sets how callbacks are dispatched. The registry takes
// ownership and closes the scheduler on Close.
func WithScheduler(s Scheduler) Option {
	return func(r *Registry) { r.scheduler = s }
}

// WithLogger sets the logger used for ignored calls and recovered panics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithObserver installs hooks called on subscribe, unsubscribe, publish and
// delivery.
func WithObserver(o Observer) Option {
	return func(r *Registry) { r.observer = o }
}

// New creates an independent Registry. Nothing is shared with any other
// Registry.
func New(opts ...Option) *Registry {
	r := &Registry{channels: make(map[string]*channel)}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	if r.observer == nil {
		r.observer = nopObserver{}
	}
	if r.scheduler == nil {
		r.scheduler = NewAsyncScheduler(r.logger)
	}
	return r
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns a process-wide Registry created on first call.
func Default() *Registry {
	defaultOnce.Do(func() { defaultRegistry = New() })
	return defaultRegistry
}

// Channel returns the channel called name, creating it on first use. Repeated
// calls with the same name return the same Channel. An empty name selects the
// default channel, as does DefaultChannelName.
func (r *Registry) Channel(name string) Channel {
	return r.channel(name).handle
}

func (r *Registry) channel(name string) *channel {
	if name == "" {
		name = DefaultChannelName
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.channels[name]; ok {
		return c
	}
	c := newChannel(name, r)
	if !r.closed.Load() {
		r.channels[name] = c
	}
	return c
}

// Publish publishes on the default channel.
func (r *Registry) Publish(topic string, payload any) Channel {
	return r.Channel("").Publish(topic, payload)
}

// Subscribe subscribes on the default channel.
func (r *Registry) Subscribe(topic string, cb Callback, opts ...SubscribeOption) Channel {
	return r.Channel("").Subscribe(topic, cb, opts...)
}

// Unsubscribe unsubscribes on the default channel.
func (r *Registry) Unsubscribe(selectors ...Selector) Channel {
	return r.Channel("").Unsubscribe(selectors...)
}

// Flush waits until every callback scheduled so far has run.
func (r *Registry) Flush(ctx context.Context) error {
	return r.scheduler.Flush(ctx)
}

// Close clears every channel, then closes the scheduler after queued
// callbacks drain. Later operations on the registry or its channels are
// no-ops.
func (r *Registry) Close(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	r.mu.Lock()
	channels := r.channels
	r.channels = make(map[string]*channel)
	r.mu.Unlock()

	for _, c := range channels {
		c.clear()
	}
	if err := r.scheduler.Close(ctx); err != nil {
		return fmt.Errorf("close scheduler: %w", err)
	}
	return nil
}

// ChannelStats describes one channel at a point in time.
type ChannelStats struct {
	Name   string       `json:"name"`
	Topics []TopicStats `json:"topics"`
}

// TopicStats describes one topic at a point in time.
type TopicStats struct {
	Name          string `json:"name"`
	Subscriptions int    `json:"subscriptions"`
}

// Stats returns a snapshot of every channel, sorted by name.
func (r *Registry) Stats() []ChannelStats {
	r.mu.Lock()
	channels := make([]*channel, 0, len(r.channels))
	for _, c := range r.channels {
		channels = append(channels, c)
	}
	r.mu.Unlock()

	out := make([]ChannelStats, 0, len(channels))
	for _, c := range channels {
		out = append(out, c.stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
