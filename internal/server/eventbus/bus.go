// Copyright (c) 2025 HYPR. PTE. LTD.
//
// Business Source License 1.1
// See LICENSE file in the project root for details.

package eventbus

import (
	"context"
	"errors"

	"github.com/tchandler/eventworks/pkg/eventworks"
)

// ErrClosed is returned once the bus has been shut down.
var ErrClosed = errors.New("eventbus: closed")

// Bus is a thin abstraction over the registry for transports that deliver
// events to remote consumers through Go channels.
type Bus interface {
	Publish(ctx context.Context, channel, topic string, payload any) error
	Subscribe(channel, topic string, ch chan<- any) (unsubscribe func(), err error)
	ClearTopic(channel, topic string)
	ClearChannel(channel string)
	Stats() []eventworks.ChannelStats
	Close(ctx context.Context) error
}
