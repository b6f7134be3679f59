// Copyright (c) 2025 HYPR. PTE. LTD.
//
// Business Source License 1.1
// See LICENSE file in the project root for details.

package eventworks

import (
	"sort"
	"sync"
)

// channel owns a namespace of topics. Lock order is channel.mu, then topic.mu.
type channel struct {
	name     string
	registry *Registry
	handle   *channelHandle

	mu     sync.Mutex
	topics map[string]*topic
}

func newChannel(name string, r *Registry) *channel {
	c := &channel{
		name:     name,
		registry: r,
		topics:   make(map[string]*topic),
	}
	c.handle = &channelHandle{c: c}
	return c
}

// getTopic returns the topic for name, creating it on first use. The caller
// must hold c.mu. An empty name yields nil.
func (c *channel) getTopic(name string) *topic {
	if name == "" {
		return nil
	}
	if t, ok := c.topics[name]; ok {
		return t
	}
	t := newTopic(name, c)
	c.topics[name] = t
	return t
}

func (c *channel) subscribe(topicName string, cb Callback, receiver any) *Subscription {
	if topicName == "" || cb == nil {
		c.registry.logger.Debug("ignoring subscribe", "channel", c.name, "topic", topicName, "has_callback", cb != nil)
		return nil
	}
	if c.registry.closed.Load() {
		return nil
	}

	c.mu.Lock()
	t := c.getTopic(topicName)
	sub := newSubscription(t, cb, receiver)
	t.addSubscription(sub)
	c.mu.Unlock()

	c.registry.observer.Subscribed(c.name, topicName)
	return sub
}

func (c *channel) publish(topicName string, payload any) {
	if topicName == "" {
		c.registry.logger.Debug("ignoring publish without topic", "channel", c.name)
		return
	}
	if c.registry.closed.Load() {
		return
	}

	c.mu.Lock()
	t := c.getTopic(topicName)
	c.mu.Unlock()

	fanout := t.callSubscriptions(c.registry.scheduler, c.registry.observer, payload)
	c.registry.observer.Published(c.name, topicName, fanout)
}

func (c *channel) unsubscribe(selectors ...Selector) {
	if len(selectors) == 0 {
		c.clear()
		return
	}
	for _, sel := range selectors {
		if sel == nil {
			continue
		}
		sel.apply(c)
	}
}

func (c *channel) removeSubscription(s *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !s.topic.removeSubscription(s) {
		return
	}
	c.registry.observer.Unsubscribed(c.name, s.topic.name, 1)
	c.pruneLocked(s.topic)
}

func (c *channel) removeMatching(m Matcher) {
	if m.topic == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.topics[m.topic]
	if !ok {
		return
	}
	if n := t.removeSubscriptionByCallback(m.callback, m.receiver); n > 0 {
		c.registry.observer.Unsubscribed(c.name, t.name, n)
	}
	c.pruneLocked(t)
}

// pruneLocked drops t from the topic map once it has no subscriptions left.
func (c *channel) pruneLocked(t *topic) {
	if c.topics[t.name] == t && t.isEmpty() {
		delete(c.topics, t.name)
	}
}

func (c *channel) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, t := range c.topics {
		if n := t.clear(); n > 0 {
			c.registry.observer.Unsubscribed(c.name, name, n)
		}
	}
	c.topics = make(map[string]*topic)
}

func (c *channel) stats() ChannelStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := ChannelStats{Name: c.name, Topics: make([]TopicStats, 0, len(c.topics))}
	for name, t := range c.topics {
		out.Topics = append(out.Topics, TopicStats{Name: name, Subscriptions: t.size()})
	}
	sort.Slice(out.Topics, func(i, j int) bool { return out.Topics[i].Name < out.Topics[j].Name })
	return out
}
