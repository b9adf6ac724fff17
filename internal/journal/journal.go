// Package journal records outbound delivery outcomes in SQLite. It stores
// when and how a push happened, never the conversation content itself.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/yichens/wxrelay"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a structured logger for the store.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements wxrelay.Journal backed by a local SQLite file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ wxrelay.Journal = (*Store)(nil)

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...Option) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("journal: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: wxrelay.NopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("journal: store opened", "path", dbPath)
	return s
}

// Init creates the deliveries table.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS deliveries (
		id TEXT PRIMARY KEY,
		user TEXT NOT NULL,
		segments INTEGER NOT NULL,
		bytes INTEGER NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("journal: init: %w", err)
	}
	s.logger.Debug("journal: init done", "elapsed", time.Since(start))
	return nil
}

// Record inserts one delivery outcome.
func (s *Store) Record(ctx context.Context, d wxrelay.Delivery) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deliveries (id, user, segments, bytes, status, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.User, d.Segments, d.Bytes, d.Status, d.Error, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("journal: record: %w", err)
	}
	return nil
}

// Recent returns the most recent delivery records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]wxrelay.Delivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user, segments, bytes, status, error, created_at
		 FROM deliveries ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	defer rows.Close()

	var out []wxrelay.Delivery
	for rows.Next() {
		var d wxrelay.Delivery
		var errMsg sql.NullString
		if err := rows.Scan(&d.ID, &d.User, &d.Segments, &d.Bytes, &d.Status, &errMsg, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		d.Error = errMsg.String
		out = append(out, d)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
