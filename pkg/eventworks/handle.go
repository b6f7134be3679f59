// Copyright (c) 2025 HYPR. PTE. LTD.
//
// Business Source License 1.1
// See LICENSE file in the project root for details.

package eventworks

// Channel is the consumer-facing view of a named channel. Every method
// returns the same Channel so calls can be chained:
//
//	reg.Channel("ui").Subscribe("click", onClick).Publish("click", evt)
type Channel interface {
	// Publish dispatches payload to every subscription on topic. Publishing
	// to a topic without subscribers is a no-op.
	Publish(topic string, payload any) Channel
	// Subscribe registers cb on topic.
	Subscribe(topic string, cb Callback, opts ...SubscribeOption) Channel
	// Unsubscribe removes the subscriptions picked by selectors: a
	// *Subscription, or a Matcher built with Match. With no selectors every
	// topic of the channel is cleared.
	Unsubscribe(selectors ...Selector) Channel
}

type channelHandle struct {
	c *channel
}

var _ Channel = (*channelHandle)(nil)

func (h *channelHandle) Publish(topic string, payload any) Channel {
	h.c.publish(topic, payload)
	return h
}

func (h *channelHandle) Subscribe(topic string, cb Callback, opts ...SubscribeOption) Channel {
	var o subscribeOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	sub := h.c.subscribe(topic, cb, o.receiver)
	if o.capture != nil {
		*o.capture = sub
	}
	return h
}

func (h *channelHandle) Unsubscribe(selectors ...Selector) Channel {
	h.c.unsubscribe(selectors...)
	return h
}

// SubscribeOption customizes a single Subscribe call.
type SubscribeOption func(*subscribeOptions)

type subscribeOptions struct {
	receiver any
	capture  **Subscription
}

// WithReceiver binds receiver as the first argument passed to the callback.
func WithReceiver(receiver any) SubscribeOption {
	return func(o *subscribeOptions) { o.receiver = receiver }
}

// Capture stores the created Subscription in dst. dst is set to nil when the
// subscribe call was ignored.
func Capture(dst **Subscription) SubscribeOption {
	return func(o *subscribeOptions) { o.capture = dst }
}

// Selector picks subscriptions for Channel.Unsubscribe.
type Selector interface {
	apply(c *channel)
}

// Matcher selects subscriptions on one topic, optionally narrowed to a
// callback and receiver.
type Matcher struct {
	topic    string
	callback Callback
	receiver any
}

// Match selects every subscription on topic.
func Match(topic string) Matcher { return Matcher{topic: topic} }

// Callback narrows the match to subscriptions registered with the same func
// value as cb. Func values are compared by closure pointer, so each evaluation
// of a method value (h.On) or function literal yields a callback that matches
// nothing registered earlier. Keep the func in a variable and pass that
// variable to both calls, or take the handle with Capture and unsubscribe
// through it.
func (m Matcher) Callback(cb Callback) Matcher {
	m.callback = cb
	return m
}

// Receiver narrows the match to subscriptions bound to receiver. It only
// applies together with Callback.
func (m Matcher) Receiver(receiver any) Matcher {
	m.receiver = receiver
	return m
}

func (m Matcher) apply(c *channel) { c.removeMatching(m) }
