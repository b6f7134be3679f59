// Copyright (c) 2025 HYPR. PTE. LTD.
//
// Business Source License 1.1
// See LICENSE file in the project root for details.

package eventworks

import "time"

// Observer receives registry activity. Implementations must be safe for
// concurrent use and must not call back into the registry.
type Observer interface {
	Subscribed(channel, topic string)
	Unsubscribed(channel, topic string, count int)
	Published(channel, topic string, fanout int)
	Delivered(channel, topic string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) Subscribed(string, string)               {}
func (nopObserver) Unsubscribed(string, string, int)        {}
func (nopObserver) Published(string, string, int)           {}
func (nopObserver) Delivered(string, string, time.Duration) {}
