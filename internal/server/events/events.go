package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/tchandler/eventworks/pkg/eventworks"
)

// Envelope wraps a payload published through the daemon so that stream
// consumers and the journal see the same identity and timestamp.
type Envelope struct {
	ID        string          `json:"id"`
	Channel   string          `json:"channel"`
	Topic     string          `json:"topic"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEnvelope stamps payload with a fresh id and the current UTC time.
func NewEnvelope(channel, topic string, payload json.RawMessage) Envelope {
	return Envelope{
		ID:        uuid.NewString(),
		Channel:   channel,
		Topic:     topic,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// DefaultChannelAlias selects the registry's default channel in URLs and CLI
// arguments.
const DefaultChannelAlias = "-"

// ChannelFromAlias maps DefaultChannelAlias (and the empty string) to the
// registry's reserved default channel name.
func ChannelFromAlias(name string) string {
	if name == "" || name == DefaultChannelAlias {
		return eventworks.DefaultChannelName
	}
	return name
}
