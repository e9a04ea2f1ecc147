package dedupe

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteRegistry persists the recent-signature window so dedup survives
// process restarts. The check-and-set runs in a single transaction, which
// is the mutual exclusion the registry contract requires.
type SQLiteRegistry struct {
	db   *sql.DB
	opts Options
}

// NewSQLiteRegistry creates a registry over db. Call EnsureTable once at
// startup.
func NewSQLiteRegistry(db *sql.DB, opts Options) *SQLiteRegistry {
	opts.defaults()
	return &SQLiteRegistry{db: db, opts: opts}
}

// EnsureTable creates the signature table if it does not exist.
func (r *SQLiteRegistry) EnsureTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS dedupe_signatures (
			signature TEXT PRIMARY KEY,
			seen_at   INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_dedupe_seen ON dedupe_signatures (seen_at);
	`)
	return err
}

// Seen implements Registry.
func (r *SQLiteRegistry) Seen(ctx context.Context, sig string) (bool, error) {
	cutoff := time.Now().Add(-r.opts.TTL).UnixMilli()
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dedupe_signatures WHERE signature = ? AND seen_at >= ?`,
		sig, cutoff,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("dedupe: seen: %w", err)
	}
	return n > 0, nil
}

// Remember implements Registry.
func (r *SQLiteRegistry) Remember(ctx context.Context, sig string) error {
	_, err := r.Admit(ctx, sig)
	return err
}

// Admit implements Registry. Expired rows are pruned and the capacity bound
// enforced inside the same transaction as the insert.
func (r *SQLiteRegistry) Admit(ctx context.Context, sig string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("dedupe: begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	cutoff := now - r.opts.TTL.Milliseconds()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM dedupe_signatures WHERE seen_at < ?`, cutoff); err != nil {
		return false, fmt.Errorf("dedupe: expire: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO dedupe_signatures (signature, seen_at) VALUES (?,?)`,
		sig, now)
	if err != nil {
		return false, fmt.Errorf("dedupe: insert: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedupe: rows affected: %w", err)
	}

	// FIFO eviction down to capacity.
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM dedupe_signatures WHERE signature NOT IN (
			SELECT signature FROM dedupe_signatures
			ORDER BY seen_at DESC, signature DESC
			LIMIT ?
		)`, r.opts.Capacity); err != nil {
		return false, fmt.Errorf("dedupe: evict: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("dedupe: commit: %w", err)
	}
	return inserted > 0, nil
}
