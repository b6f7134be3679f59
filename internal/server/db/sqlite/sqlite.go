// Copyright (c) 2025 HYPR. PTE. LTD.
//
// Business Source License 1.1
// See LICENSE file in the project root for details.

package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tchandler/eventworks/internal/server/db"
)

const (
	memoryPath         = ":memory:"
	defaultBusyTimeout = 5 * time.Second
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the sqlite-backed publish journal.
type Store struct {
	db        *sql.DB
	retention int
	wal       bool
}

var _ db.Store = (*Store)(nil)

// Option adjusts how Open prepares the journal database.
type Option func(*options)

type options struct {
	retention   int
	busyTimeout time.Duration
}

// WithRetention caps the journal at the newest keep entries. Record prunes
// older rows in the same transaction as the insert. keep <= 0 keeps
// everything.
func WithRetention(keep int) Option {
	return func(o *options) { o.retention = keep }
}

// WithBusyTimeout sets how long a writer waits on a locked database.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.busyTimeout = d
		}
	}
}

// Open opens the journal at path and brings its schema up to date. The path
// ":memory:" opens a private in-memory journal; any other path is created
// with its parent directories and runs in WAL mode.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	o := options{busyTimeout: defaultBusyTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	dsn, wal, err := journalDSN(path, o.busyTimeout)
	if err != nil {
		return nil, err
	}
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serialises journal writes and keeps a :memory: database
	// alive for the lifetime of the store.
	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)

	if err := migrate(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &Store{db: conn, retention: o.retention, wal: wal}, nil
}

// Retention reports the configured journal cap; zero means unbounded.
func (s *Store) Retention() int {
	if s.retention < 0 {
		return 0
	}
	return s.retention
}

// Record appends entry and enforces the retention policy atomically.
func (s *Store) Record(ctx context.Context, entry *db.JournalEntry) (int64, error) {
	var id int64
	err := s.WithTx(ctx, func(q db.Queries) error {
		journal := q.Journal()
		var err error
		if id, err = journal.Append(ctx, entry); err != nil {
			return err
		}
		if _, err := journal.Prune(ctx, s.retention); err != nil {
			return fmt.Errorf("prune journal: %w", err)
		}
		return nil
	})
	return id, err
}

// Close folds the WAL back into the main file and closes the pool.
func (s *Store) Close(ctx context.Context) error {
	if s.wal {
		if _, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE);`); err != nil {
			_ = s.db.Close()
			return fmt.Errorf("checkpoint journal: %w", err)
		}
	}
	return s.db.Close()
}

// Queries returns repository accessors bound to the root connection.
func (s *Store) Queries() db.Queries {
	return &queries{exec: s.db}
}

// WithTx runs fn inside a transaction and rolls back when fn fails.
func (s *Store) WithTx(ctx context.Context, fn func(db.Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&queries{exec: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback tx after error %v: %w", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func journalDSN(p string, busy time.Duration) (dsn string, wal bool, err error) {
	params := url.Values{}
	params.Set("_busy_timeout", strconv.FormatInt(busy.Milliseconds(), 10))
	params.Set("_foreign_keys", "on")

	if p == memoryPath {
		params.Set("_journal_mode", "MEMORY")
		return "file::memory:?" + params.Encode(), false, nil
	}
	if strings.TrimSpace(p) == "" {
		return "", false, fmt.Errorf("journal path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", false, fmt.Errorf("ensure journal directory: %w", err)
	}
	params.Set("_journal_mode", "WAL")
	params.Set("_synchronous", "NORMAL")
	return "file:" + p + "?" + params.Encode(), true, nil
}

// migrate applies every embedded migration newer than the database's
// user_version. Files are named <version>_<name>.sql.
func migrate(ctx context.Context, conn *sql.DB) error {
	var current int
	if err := conn.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	files, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		prefix, _, ok := strings.Cut(path.Base(file), "_")
		if !ok {
			return fmt.Errorf("invalid migration filename: %s", file)
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return fmt.Errorf("parse version for %s: %w", file, err)
		}
		if version <= current {
			continue
		}
		body, err := fs.ReadFile(migrationsFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if err := applyMigration(ctx, conn, version, string(body)); err != nil {
			return err
		}
		current = version
	}
	return nil
}

func applyMigration(ctx context.Context, conn *sql.DB, version int, body string) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, body); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("apply migration %d: %w", version, err)
	}
	// PRAGMA does not accept bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d;`, version)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration %d: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", version, err)
	}
	return nil
}
