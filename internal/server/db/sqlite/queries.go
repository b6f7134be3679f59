// Copyright (c) 2025 HYPR. PTE. LTD.
//
// Business Source License 1.1
// See LICENSE file in the project root for details.

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tchandler/eventworks/internal/server/db"
)

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339,
	time.RFC3339Nano,
}

// executor abstracts *sql.DB and *sql.Tx for shared query logic.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	exec executor
}

var _ db.Queries = (*queries)(nil)

func (q *queries) Journal() db.JournalRepository {
	return &journalRepository{exec: q.exec}
}

type journalRepository struct {
	exec executor
}

var _ db.JournalRepository = (*journalRepository)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *journalRepository) Append(ctx context.Context, entry *db.JournalEntry) (int64, error) {
	if entry == nil || entry.EventID == "" || entry.Channel == "" || entry.Topic == "" {
		return 0, db.ErrInvalidEntry
	}
	publishedAt := entry.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = time.Now()
	}

	res, err := r.exec.ExecContext(
		ctx,
		`INSERT INTO journal (event_id, channel, topic, payload, published_at)
         VALUES (?, ?, ?, ?, ?);`,
		entry.EventID,
		entry.Channel,
		entry.Topic,
		nullableBytes(entry.Payload),
		publishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("insert journal entry: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("journal last insert id: %w", err)
	}
	entry.ID = id
	return id, nil
}

func (r *journalRepository) List(ctx context.Context, filter db.JournalFilter) ([]db.JournalEntry, error) {
	var (
		where []string
		args  []any
	)
	if filter.Channel != "" {
		where = append(where, "channel = ?")
		args = append(args, filter.Channel)
	}
	if filter.Topic != "" {
		where = append(where, "topic = ?")
		args = append(args, filter.Topic)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = db.DefaultJournalLimit
	}

	query := `SELECT id, event_id, channel, topic, payload, published_at FROM journal`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?;"
	args = append(args, limit)

	rows, err := r.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	defer rows.Close()

	var entries []db.JournalEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}

	// Newest rows were selected; hand them back oldest first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

func (r *journalRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.exec.QueryRowContext(ctx, `SELECT COUNT(*) FROM journal;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count journal: %w", err)
	}
	return n, nil
}

func (r *journalRepository) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := r.exec.ExecContext(
		ctx,
		`DELETE FROM journal WHERE id NOT IN (SELECT id FROM journal ORDER BY id DESC LIMIT ?);`,
		keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune journal rows affected: %w", err)
	}
	return n, nil
}

func scanEntry(row rowScanner) (db.JournalEntry, error) {
	var (
		entry     db.JournalEntry
		payload   []byte
		published any
	)
	if err := row.Scan(&entry.ID, &entry.EventID, &entry.Channel, &entry.Topic, &payload, &published); err != nil {
		return db.JournalEntry{}, fmt.Errorf("scan journal entry: %w", err)
	}
	ts, err := coerceTime(published)
	if err != nil {
		return db.JournalEntry{}, fmt.Errorf("journal entry %d: %w", entry.ID, err)
	}
	entry.Payload = payload
	entry.PublishedAt = ts
	return entry, nil
}

func nullableBytes(v []byte) any {
	if len(v) == 0 {
		return nil
	}
	return v
}

func coerceTime(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		for _, layout := range timestampLayouts {
			if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognised time format: %q", v)
	case []byte:
		s := string(v)
		for _, layout := range timestampLayouts {
			if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognised time format bytes: %q", s)
	case nil:
		return time.Time{}, nil
	default:
		return time.Time{}, fmt.Errorf("unsupported time type %T", value)
	}
}
