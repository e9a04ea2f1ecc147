package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lesprgm/Roulette-sub000/document"
	"github.com/lesprgm/Roulette-sub000/idgen"
)

// SQLite is the file-backed queue. A single DELETE…RETURNING makes dequeue
// atomic without advisory locks, and the INSERT is durable under WAL before
// Enqueue returns.
type SQLite struct {
	db     *sql.DB
	newID  idgen.Generator
	logger *slog.Logger
}

// SQLiteOption configures the SQLite queue.
type SQLiteOption func(*SQLite)

// WithIDGenerator overrides the entry ID generator.
func WithIDGenerator(gen idgen.Generator) SQLiteOption {
	return func(q *SQLite) { q.newID = gen }
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) SQLiteOption {
	return func(q *SQLite) { q.logger = l }
}

// NewSQLite creates a queue over db. Call EnsureTable once at startup.
func NewSQLite(db *sql.DB, opts ...SQLiteOption) *SQLite {
	q := &SQLite{
		db:     db,
		newID:  idgen.Prefixed("doc_", idgen.Default),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// EnsureTable creates the queue table and index if they do not exist.
func (q *SQLite) EnsureTable(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS prefetch_queue (
			id          TEXT PRIMARY KEY,
			payload     BLOB NOT NULL,
			enqueued_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_prefetch_enqueued ON prefetch_queue (enqueued_at);
	`)
	return err
}

// Enqueue implements Queue.
func (q *SQLite) Enqueue(ctx context.Context, doc *document.Document) (string, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("queue: marshal: %w", err)
	}
	id := q.newID()
	_, err = q.db.ExecContext(ctx,
		`INSERT INTO prefetch_queue (id, payload, enqueued_at) VALUES (?,?,?)`,
		id, payload, time.Now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("queue: insert: %w", err)
	}
	return id, nil
}

// Dequeue implements Queue. Undecodable payloads are skipped, not surfaced:
// the next oldest entry is returned instead.
func (q *SQLite) Dequeue(ctx context.Context) (*Entry, error) {
	for {
		row := q.db.QueryRowContext(ctx, `
			DELETE FROM prefetch_queue
			WHERE id = (
				SELECT id FROM prefetch_queue
				ORDER BY enqueued_at ASC, id ASC
				LIMIT 1
			)
			RETURNING id, payload, enqueued_at`)

		var (
			id      string
			payload []byte
			at      int64
		)
		err := row.Scan(&id, &payload, &at)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("queue: dequeue: %w", err)
		}

		var doc document.Document
		if err := json.Unmarshal(payload, &doc); err != nil {
			q.logger.Warn("queue: skipping undecodable entry", "id", id, "error", err)
			continue
		}
		return &Entry{ID: id, EnqueuedAt: time.UnixMilli(at), Doc: &doc}, nil
	}
}

// Size implements Queue.
func (q *SQLite) Size(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM prefetch_queue`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("queue: size: %w", err)
	}
	return n, nil
}
