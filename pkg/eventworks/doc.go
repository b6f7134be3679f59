// Copyright (c) 2025 HYPR. PTE. LTD.
//
// Business Source License 1.1
// See LICENSE file in the project root for details.

// Package eventworks is an in-process publish/subscribe registry organized
// around named channels and topics.
//
// A Registry owns a set of channels. Publishers emit a payload on a topic of a
// channel; every callback subscribed to that topic on that channel receives it.
// Registries are fully isolated from one another.
//
//	reg := eventworks.New()
//	defer reg.Close(context.Background())
//
//	var sub *eventworks.Subscription
//	reg.Channel("orders").
//		Subscribe("created", onCreated, eventworks.Capture(&sub)).
//		Publish("created", order)
//
//	sub.Unsubscribe()
//
// Dispatch is asynchronous by default: Publish returns before callbacks run
// and callbacks execute one at a time, in publish order, on the registry's
// scheduler goroutine. Use WithScheduler(Synchronous()) to run callbacks
// inline during Publish instead.
//
// Invalid arguments (empty topic names, nil callbacks) and operations on a
// closed registry are silent no-ops.
package eventworks
