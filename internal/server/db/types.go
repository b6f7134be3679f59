package db

import (
	"context"
	"errors"
	"time"
)

// JournalEntry is one accepted publish recorded by the daemon.
type JournalEntry struct {
	ID          int64
	EventID     string
	Channel     string
	Topic       string
	Payload     []byte
	PublishedAt time.Time
}

// JournalFilter narrows a journal listing. Empty fields match everything.
type JournalFilter struct {
	Channel string
	Topic   string
	// Limit caps the number of entries returned; zero or less means the
	// repository default.
	Limit int
}

// DefaultJournalLimit bounds listings when the filter leaves Limit unset.
const DefaultJournalLimit = 100

// ErrInvalidEntry is returned when a journal entry lacks its identity fields.
var ErrInvalidEntry = errors.New("db: journal entry requires event id, channel and topic")

// Store describes the persistence surface consumed by the daemon.
type Store interface {
	Close(ctx context.Context) error
	Queries() Queries
	WithTx(ctx context.Context, fn func(Queries) error) error
	// Record appends entry and applies the store's retention policy in one
	// step.
	Record(ctx context.Context, entry *JournalEntry) (int64, error)
}

// JournalRepository persists the publish history.
type JournalRepository interface {
	Append(ctx context.Context, entry *JournalEntry) (int64, error)
	// List returns matching entries oldest first, limited to the most recent
	// filter.Limit rows.
	List(ctx context.Context, filter JournalFilter) ([]JournalEntry, error)
	Count(ctx context.Context) (int64, error)
	// Prune keeps the newest keep entries and deletes the rest. keep <= 0
	// disables pruning.
	Prune(ctx context.Context, keep int) (int64, error)
}

// Queries exposes repository accessors bound to a specific connection scope
// (root DB or transaction).
type Queries interface {
	Journal() JournalRepository
}
