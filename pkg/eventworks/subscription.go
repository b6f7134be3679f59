// Copyright (c) 2025 HYPR. PTE. LTD.
//
// Business Source License 1.1
// See LICENSE file in the project root for details.

package eventworks

import (
	"reflect"
	"sync/atomic"
	"time"
	"unsafe"
)

// Callback receives a published payload. receiver is the value bound with
// WithReceiver at subscription time, or nil.
type Callback func(receiver any, payload any)

// Subscription is one callback registered against one topic. It is the
// stable handle used to remove that registration, even for anonymous
// callbacks.
type Subscription struct {
	callback Callback
	receiver any
	topic    *topic

	inFlight atomic.Int32
	detached atomic.Bool
}

func newSubscription(t *topic, cb Callback, receiver any) *Subscription {
	return &Subscription{callback: cb, receiver: receiver, topic: t}
}

// Topic returns the name of the topic the subscription was registered on.
func (s *Subscription) Topic() string {
	if s == nil {
		return ""
	}
	return s.topic.name
}

// Active reports whether the subscription is still registered.
func (s *Subscription) Active() bool {
	return s != nil && !s.detached.Load()
}

// InFlight reports whether a fire of this subscription has been scheduled
// and not yet completed. It is informational only: overlapping fires are not
// prevented.
func (s *Subscription) InFlight() bool {
	return s != nil && s.inFlight.Load() > 0
}

// Unsubscribe removes the subscription from its topic. Calls after the first
// are no-ops.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.detached.Load() {
		return
	}
	s.topic.channel.removeSubscription(s)
}

func (s *Subscription) apply(*channel) { s.Unsubscribe() }

func (s *Subscription) fire(sched Scheduler, obs Observer, payload any) {
	s.inFlight.Add(1)
	channelName, topicName := s.topic.channel.name, s.topic.name
	scheduled := sched.Schedule(func() {
		start := time.Now()
		defer func() {
			s.inFlight.Add(-1)
			obs.Delivered(channelName, topicName, time.Since(start))
		}()
		s.callback(s.receiver, payload)
	})
	if !scheduled {
		s.inFlight.Add(-1)
	}
}

func (s *Subscription) matches(cb Callback, receiver any) bool {
	if !sameCallback(s.callback, cb) {
		return false
	}
	return receiver == nil || sameReceiver(s.receiver, receiver)
}

// sameCallback compares the closure pointers of two func values. Distinct
// closures (and distinct method values) never match, even when built from the
// same function literal.
func sameCallback(a, b Callback) bool {
	if a == nil || b == nil {
		return false
	}
	return *(*unsafe.Pointer)(unsafe.Pointer(&a)) == *(*unsafe.Pointer)(unsafe.Pointer(&b))
}

func sameReceiver(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	if va.Comparable() && vb.Comparable() {
		return va.Equal(vb)
	}
	switch va.Kind() {
	case reflect.Map, reflect.Slice, reflect.Func, reflect.Pointer, reflect.Chan, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	}
	return false
}
