package eventworks

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func newSyncRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := New(WithScheduler(Synchronous()))
	t.Cleanup(func() { _ = reg.Close(context.Background()) })
	return reg
}

type counter struct {
	count int
}

func TestChannelIdentity(t *testing.T) {
	reg := newSyncRegistry(t)

	named := reg.Channel("namedChannel")
	if named != reg.Channel("namedChannel") {
		t.Fatalf("expected same channel for repeated name")
	}
	if named == reg.Channel("otherChannel") {
		t.Fatalf("expected distinct channels for distinct names")
	}
	if named == reg.Channel("") {
		t.Fatalf("named channel must differ from default channel")
	}
}

func TestDefaultChannelAliases(t *testing.T) {
	reg := newSyncRegistry(t)

	def := reg.Channel("")
	if def != reg.Channel(DefaultChannelName) {
		t.Fatalf("empty name and reserved name must resolve to the same channel")
	}
	if def != reg.Publish("noop", nil) {
		t.Fatalf("registry publish must act on the default channel")
	}
	if def != reg.Subscribe("noop", func(any, any) {}) {
		t.Fatalf("registry subscribe must act on the default channel")
	}
	if def != reg.Unsubscribe(Match("noop")) {
		t.Fatalf("registry unsubscribe must act on the default channel")
	}
}

func TestPublishInvokesOnlyMatchingTopic(t *testing.T) {
	reg := newSyncRegistry(t)

	var got []any
	reg.Channel("").
		Subscribe("testEvent", func(_ any, payload any) { got = append(got, payload) }).
		Publish("testEvent", 1).
		Publish("anotherEvent", 2).
		Publish("testEvent", 3)

	if diff := cmp.Diff([]any{1, 3}, got); diff != "" {
		t.Fatalf("unexpected deliveries (-want +got):\n%s", diff)
	}
}

func TestDispatchFollowsSubscriptionOrder(t *testing.T) {
	reg := newSyncRegistry(t)
	ch := reg.Channel("ordered")

	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		ch.Subscribe("evt", func(any, any) { order = append(order, name) })
	}
	ch.Publish("evt", nil)

	if diff := cmp.Diff([]string{"first", "second", "third"}, order); diff != "" {
		t.Fatalf("unexpected dispatch order (-want +got):\n%s", diff)
	}
}

func TestReceiverIsBound(t *testing.T) {
	reg := newSyncRegistry(t)
	ch := reg.Channel("")

	ctx := &counter{}
	fired := 0
	cb1 := func(any, any) { fired++ }
	cb2 := func(receiver any, _ any) { receiver.(*counter).count++ }

	ch.Subscribe("testEvent", cb1).
		Subscribe("testEvent", cb2, WithReceiver(ctx)).
		Publish("testEvent", nil)

	if fired != 1 || ctx.count != 1 {
		t.Fatalf("expected both callbacks once, got fired=%d count=%d", fired, ctx.count)
	}

	ch.Publish("anotherEvent", nil)
	if fired != 1 || ctx.count != 1 {
		t.Fatalf("publish to another topic fired callbacks: fired=%d count=%d", fired, ctx.count)
	}
}

func TestUnsubscribeByCallbackThenTopic(t *testing.T) {
	reg := newSyncRegistry(t)
	ch := reg.Channel("")

	fireCount := 0
	cbB := func(any, any) { fireCount += 2 }

	ch.Subscribe("testEvent", func(any, any) { fireCount++ })
	ch.Subscribe("testEvent", cbB)
	ch.Publish("testEvent", nil)
	if fireCount != 3 {
		t.Fatalf("expected 3 after first publish, got %d", fireCount)
	}

	ch.Unsubscribe(Match("testEvent").Callback(cbB))
	ch.Publish("testEvent", nil)
	if fireCount != 4 {
		t.Fatalf("expected only anonymous callback to fire, got %d", fireCount)
	}

	ch.Unsubscribe(Match("testEvent"))
	if stats := reg.Stats(); len(stats) != 1 || len(stats[0].Topics) != 0 {
		t.Fatalf("expected cleared topic to be dropped, got %+v", stats)
	}

	ch.Publish("testEvent", nil)
	if fireCount != 4 {
		t.Fatalf("expected no callbacks after clearing topic, got %d", fireCount)
	}
	want := []ChannelStats{{Name: DefaultChannelName, Topics: []TopicStats{{Name: "testEvent", Subscriptions: 0}}}}
	if diff := cmp.Diff(want, reg.Stats()); diff != "" {
		t.Fatalf("publish should recreate an empty topic (-want +got):\n%s", diff)
	}
}

func TestUnsubscribeRemovesEveryMatch(t *testing.T) {
	reg := newSyncRegistry(t)
	ch := reg.Channel("dups")

	hits := 0
	cb := func(any, any) { hits++ }
	other := func(any, any) { hits += 10 }
	ch.Subscribe("evt", cb).Subscribe("evt", other).Subscribe("evt", cb)

	ch.Unsubscribe(Match("evt").Callback(cb))
	ch.Publish("evt", nil)

	if hits != 10 {
		t.Fatalf("expected only the other callback to remain, got %d", hits)
	}
}

func TestUnsubscribeDistinguishesClosures(t *testing.T) {
	reg := newSyncRegistry(t)
	ch := reg.Channel("closures")

	var got []int
	makeCB := func(n int) Callback { return func(any, any) { got = append(got, n) } }
	one, two := makeCB(1), makeCB(2)
	ch.Subscribe("evt", one).Subscribe("evt", two)

	ch.Unsubscribe(Match("evt").Callback(one))
	ch.Publish("evt", nil)

	if diff := cmp.Diff([]int{2}, got); diff != "" {
		t.Fatalf("closures from the same literal must match independently (-want +got):\n%s", diff)
	}
}

type listener struct{ hits int }

func (l *listener) On(any, any) { l.hits++ }

func TestUnsubscribeMethodValues(t *testing.T) {
	reg := newSyncRegistry(t)
	ch := reg.Channel("methods")
	l := &listener{}

	// A fresh method value is a new closure and matches nothing.
	ch.Subscribe("evt", l.On)
	ch.Unsubscribe(Match("evt").Callback(l.On))
	ch.Publish("evt", nil)
	if l.hits != 1 {
		t.Fatalf("expected fresh method value not to match, got %d hits", l.hits)
	}
	ch.Unsubscribe(Match("evt"))

	on := l.On
	ch.Subscribe("evt", on)
	ch.Unsubscribe(Match("evt").Callback(on))
	ch.Publish("evt", nil)
	if l.hits != 1 {
		t.Fatalf("expected stored method value to match, got %d hits", l.hits)
	}

	var sub *Subscription
	ch.Subscribe("evt", l.On, Capture(&sub))
	sub.Unsubscribe()
	ch.Publish("evt", nil)
	if l.hits != 1 {
		t.Fatalf("expected captured subscription to be removed, got %d hits", l.hits)
	}
}

func TestUnsubscribeHonoursReceiver(t *testing.T) {
	reg := newSyncRegistry(t)
	ch := reg.Channel("receivers")

	a, b := &counter{}, &counter{}
	cb := func(receiver any, _ any) { receiver.(*counter).count++ }
	ch.Subscribe("evt", cb, WithReceiver(a)).Subscribe("evt", cb, WithReceiver(b))

	ch.Unsubscribe(Match("evt").Callback(cb).Receiver(a))
	ch.Publish("evt", nil)
	if a.count != 0 || b.count != 1 {
		t.Fatalf("expected only receiver b to fire, got a=%d b=%d", a.count, b.count)
	}

	ch.Unsubscribe(Match("evt").Callback(cb))
	ch.Publish("evt", nil)
	if b.count != 1 {
		t.Fatalf("omitted receiver must match any receiver, got b=%d", b.count)
	}
}

func TestUnsubscribeBySubscription(t *testing.T) {
	reg := newSyncRegistry(t)
	ch := reg.Channel("handles")

	hits := 0
	cb := func(any, any) { hits++ }
	var first, second *Subscription
	ch.Subscribe("evt", cb, Capture(&first)).Subscribe("evt", cb, Capture(&second))
	if first == nil || second == nil || first == second {
		t.Fatalf("expected two distinct subscription handles")
	}
	if first.Topic() != "evt" {
		t.Fatalf("unexpected topic %q", first.Topic())
	}

	ch.Unsubscribe(first)
	ch.Publish("evt", nil)
	if hits != 1 {
		t.Fatalf("expected one remaining subscription, got %d hits", hits)
	}
	if first.Active() || !second.Active() {
		t.Fatalf("unexpected active flags: first=%v second=%v", first.Active(), second.Active())
	}

	second.Unsubscribe()
	second.Unsubscribe()
	if stats := reg.Stats(); len(stats) != 1 || len(stats[0].Topics) != 0 {
		t.Fatalf("expected empty topic to be dropped, got %+v", stats)
	}

	ch.Publish("evt", nil)
	if hits != 1 {
		t.Fatalf("expected no deliveries after self unsubscribe, got %d", hits)
	}
	if stats := reg.Stats(); len(stats[0].Topics) != 1 || stats[0].Topics[0].Subscriptions != 0 {
		t.Fatalf("expected publish to recreate an empty topic, got %+v", stats)
	}
}

func TestUnsubscribeWithoutSelectorsClearsChannel(t *testing.T) {
	reg := newSyncRegistry(t)
	ch := reg.Channel("everything")
	other := reg.Channel("untouched")

	hits := 0
	cb := func(any, any) { hits++ }
	var sub *Subscription
	ch.Subscribe("a", cb, Capture(&sub)).Subscribe("b", cb)
	other.Subscribe("a", cb)

	ch.Unsubscribe()
	ch.Publish("a", nil).Publish("b", nil)
	if hits != 0 {
		t.Fatalf("expected cleared channel to deliver nothing, got %d", hits)
	}
	if sub.Active() {
		t.Fatalf("cleared subscription still reports active")
	}

	other.Publish("a", nil)
	if hits != 1 {
		t.Fatalf("clearing one channel must not affect another, got %d", hits)
	}
}

func TestRegistriesAreIsolated(t *testing.T) {
	regA := newSyncRegistry(t)
	regB := newSyncRegistry(t)

	if regA.Channel("") == regB.Channel("") {
		t.Fatalf("default channels of distinct registries must differ")
	}
	if regA.Channel("namedChannel") == regB.Channel("namedChannel") {
		t.Fatalf("named channels of distinct registries must differ")
	}

	hitsA, hitsB := 0, 0
	regA.Subscribe("testEvent", func(any, any) { hitsA++ })
	regB.Subscribe("testEvent", func(any, any) { hitsB++ })

	regA.Publish("testEvent", nil)
	if hitsA != 1 || hitsB != 0 {
		t.Fatalf("cross delivery from A: a=%d b=%d", hitsA, hitsB)
	}
	regB.Publish("testEvent", nil)
	if hitsA != 1 || hitsB != 1 {
		t.Fatalf("cross delivery from B: a=%d b=%d", hitsA, hitsB)
	}
}

func TestInvalidArgumentsAreNoops(t *testing.T) {
	reg := newSyncRegistry(t)
	ch := reg.Channel("lenient")

	sub := &Subscription{}
	ch.Subscribe("", func(any, any) {}, Capture(&sub))
	if sub != nil {
		t.Fatalf("subscribe without topic must not create a subscription")
	}
	ch.Subscribe("evt", nil, Capture(&sub))
	if sub != nil {
		t.Fatalf("subscribe without callback must not create a subscription")
	}
	ch.Publish("", "ignored").
		Unsubscribe(Match("")).
		Unsubscribe(Match("missing").Callback(func(any, any) {})).
		Unsubscribe(nil, (*Subscription)(nil))

	if stats := reg.Stats(); len(stats) != 1 || len(stats[0].Topics) != 0 {
		t.Fatalf("expected no topics, got %+v", stats)
	}
}

func TestPublishCreatesEmptyTopic(t *testing.T) {
	reg := newSyncRegistry(t)
	reg.Channel("lazy").Publish("nobody", nil)

	want := []ChannelStats{{Name: "lazy", Topics: []TopicStats{{Name: "nobody", Subscriptions: 0}}}}
	if diff := cmp.Diff(want, reg.Stats()); diff != "" {
		t.Fatalf("unexpected stats (-want +got):\n%s", diff)
	}
}

type app struct {
	*Registry
}

func TestEmbeddedRegistry(t *testing.T) {
	a := app{Registry: newSyncRegistry(t)}
	b := app{Registry: newSyncRegistry(t)}

	hits := 0
	a.Subscribe("evt", func(any, any) { hits++ })
	b.Publish("evt", nil)
	a.Publish("evt", nil)
	if hits != 1 {
		t.Fatalf("expected embedded registries to stay isolated, got %d", hits)
	}
}

func TestDefaultRegistryIsShared(t *testing.T) {
	if Default() != Default() {
		t.Fatalf("Default must return the same registry")
	}
	if Default() == New(WithScheduler(Synchronous())) {
		t.Fatalf("New must never return the default registry")
	}
}

func TestOperationsAfterCloseAreNoops(t *testing.T) {
	reg := New(WithScheduler(Synchronous()))
	ch := reg.Channel("closing")

	hits := 0
	ch.Subscribe("evt", func(any, any) { hits++ })
	if err := reg.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := reg.Close(context.Background()); err != ErrClosed {
		t.Fatalf("expected ErrClosed on second close, got %v", err)
	}

	var sub *Subscription
	ch.Subscribe("evt", func(any, any) { hits++ }, Capture(&sub)).Publish("evt", nil)
	reg.Publish("evt", nil)
	if hits != 0 || sub != nil {
		t.Fatalf("closed registry delivered or subscribed: hits=%d sub=%v", hits, sub)
	}
	if len(reg.Stats()) != 0 {
		t.Fatalf("closed registry retained channels: %+v", reg.Stats())
	}
}

type recordingObserver struct {
	subscribed, unsubscribed, published, delivered int
}

func (o *recordingObserver) Subscribed(string, string)               { o.subscribed++ }
func (o *recordingObserver) Unsubscribed(_, _ string, n int)         { o.unsubscribed += n }
func (o *recordingObserver) Published(_, _ string, fanout int)       { o.published += fanout }
func (o *recordingObserver) Delivered(string, string, time.Duration) { o.delivered++ }

func TestObserverSeesActivity(t *testing.T) {
	obs := &recordingObserver{}
	reg := New(WithScheduler(Synchronous()), WithObserver(obs))
	t.Cleanup(func() { _ = reg.Close(context.Background()) })

	cb := func(any, any) {}
	reg.Channel("obs").Subscribe("evt", cb).Subscribe("evt", cb).Publish("evt", nil)
	reg.Channel("obs").Unsubscribe(Match("evt").Callback(cb))

	want := recordingObserver{subscribed: 2, unsubscribed: 2, published: 2, delivered: 2}
	if *obs != want {
		t.Fatalf("unexpected observer counts: got %+v want %+v", *obs, want)
	}
}

func TestSameReceiver(t *testing.T) {
	p := &counter{}
	m := map[string]int{}
	s := []int{1}
	cases := []struct {
		name string
		a, b any
		want bool
	}{
		{"same pointer", p, p, true},
		{"distinct pointers", p, &counter{}, false},
		{"equal strings", "x", "x", true},
		{"different types", 1, int64(1), false},
		{"same map", m, m, true},
		{"different maps", m, map[string]int{}, false},
		{"same slice", s, s, true},
		{"nil and value", nil, p, false},
		{"struct values", counter{count: 1}, counter{count: 1}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := sameReceiver(tc.a, tc.b); got != tc.want {
				t.Fatalf("sameReceiver(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}
