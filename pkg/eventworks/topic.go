// Copyright (c) 2025 HYPR. PTE. LTD.
//
// Business Source License 1.1
// See LICENSE file in the project root for details.

package eventworks

import "sync"

// topic holds the ordered subscriptions for one event name within a channel.
type topic struct {
	name    string
	channel *channel

	mu   sync.RWMutex
	subs []*Subscription
}

func newTopic(name string, c *channel) *topic {
	return &topic{name: name, channel: c}
}

func (t *topic) addSubscription(s *Subscription) {
	if s == nil || s.callback == nil || s.topic != t {
		return
	}
	t.mu.Lock()
	t.subs = append(t.subs, s)
	t.mu.Unlock()
}

// callSubscriptions fires every subscription present when dispatch begins.
// Subscriptions added or removed by callbacks take effect on the next publish.
func (t *topic) callSubscriptions(sched Scheduler, obs Observer, payload any) int {
	t.mu.RLock()
	snapshot := make([]*Subscription, len(t.subs))
	copy(snapshot, t.subs)
	t.mu.RUnlock()

	for _, s := range snapshot {
		s.fire(sched, obs, payload)
	}
	return len(snapshot)
}

func (t *topic) removeSubscription(s *Subscription) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.subs {
		if t.subs[i] == s {
			t.subs = append(t.subs[:i:i], t.subs[i+1:]...)
			s.detached.Store(true)
			return true
		}
	}
	return false
}

// removeSubscriptionByCallback removes every subscription matching cb (and
// receiver, when non-nil). A nil cb clears the topic.
func (t *topic) removeSubscriptionByCallback(cb Callback, receiver any) int {
	if cb == nil {
		return t.clear()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := make([]*Subscription, 0, len(t.subs))
	removed := 0
	for _, s := range t.subs {
		if s.matches(cb, receiver) {
			s.detached.Store(true)
			removed++
			continue
		}
		kept = append(kept, s)
	}
	t.subs = kept
	return removed
}

func (t *topic) clear() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.subs {
		s.detached.Store(true)
	}
	n := len(t.subs)
	t.subs = nil
	return n
}

func (t *topic) size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

func (t *topic) isEmpty() bool { return t.size() == 0 }
