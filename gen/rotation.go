package gen

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
)

// Rotation hands out category labels from a fixed ordered list, advancing
// a monotonically increasing counter modulo the list length. Consecutive
// calls are guaranteed non-repeating until the list wraps — a random draw
// would not give that.
type Rotation interface {
	// Next advances the rotation and returns the drawn category.
	Next(ctx context.Context) (string, error)
	// Index returns the current counter value modulo the list length.
	Index(ctx context.Context) (int, error)
}

// MemoryRotation is the in-process rotation: a single atomic counter,
// initialized to index 0 at process start, no teardown.
type MemoryRotation struct {
	categories []string
	counter    atomic.Int64
}

// NewMemoryRotation creates a rotation over categories.
func NewMemoryRotation(categories []string) *MemoryRotation {
	return &MemoryRotation{categories: categories}
}

// Next implements Rotation.
func (r *MemoryRotation) Next(context.Context) (string, error) {
	n := r.counter.Add(1) - 1
	return r.categories[int(n%int64(len(r.categories)))], nil
}

// Index implements Rotation.
func (r *MemoryRotation) Index(context.Context) (int, error) {
	return int(r.counter.Load() % int64(len(r.categories))), nil
}

// SQLiteRotation persists the counter so the rotation position survives
// restarts. The single-row UPDATE…RETURNING is the atomic advancement.
type SQLiteRotation struct {
	db         *sql.DB
	categories []string
}

// NewSQLiteRotation creates a persisted rotation. Call EnsureTable once at
// startup.
func NewSQLiteRotation(db *sql.DB, categories []string) *SQLiteRotation {
	return &SQLiteRotation{db: db, categories: categories}
}

// EnsureTable creates the counter row if it does not exist.
func (r *SQLiteRotation) EnsureTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS category_rotation (
			id      INTEGER PRIMARY KEY CHECK (id = 1),
			counter INTEGER NOT NULL
		);
		INSERT OR IGNORE INTO category_rotation (id, counter) VALUES (1, 0);
	`)
	return err
}

// Next implements Rotation.
func (r *SQLiteRotation) Next(ctx context.Context) (string, error) {
	var counter int64
	err := r.db.QueryRowContext(ctx,
		`UPDATE category_rotation SET counter = counter + 1 WHERE id = 1 RETURNING counter`,
	).Scan(&counter)
	if err != nil {
		return "", fmt.Errorf("rotation: advance: %w", err)
	}
	return r.categories[int((counter-1)%int64(len(r.categories)))], nil
}

// Index implements Rotation.
func (r *SQLiteRotation) Index(ctx context.Context) (int, error) {
	var counter int64
	err := r.db.QueryRowContext(ctx,
		`SELECT counter FROM category_rotation WHERE id = 1`,
	).Scan(&counter)
	if err != nil {
		return 0, fmt.Errorf("rotation: read: %w", err)
	}
	return int(counter % int64(len(r.categories))), nil
}
