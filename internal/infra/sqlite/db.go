// Package sqlite provides the SQLite-backed ProgressStore.
// Uses WAL mode for concurrent reads and crash-safe writes.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/rewards.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "rewards.db")
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Connection pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		// Aggregate snapshot. Scalar columns are copies of the JSON document
		// kept for leaderboards and the version check.
		`CREATE TABLE IF NOT EXISTS progress (
			user_id      TEXT PRIMARY KEY,
			version      INTEGER NOT NULL,
			total_points INTEGER NOT NULL DEFAULT 0,
			balance      INTEGER NOT NULL DEFAULT 0,
			level        INTEGER NOT NULL DEFAULT 1,
			data         TEXT NOT NULL,
			updated_at   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_progress_points ON progress(total_points DESC)`,

		// Append-only points ledger. seq fixes insertion order.
		`CREATE TABLE IF NOT EXISTS points_ledger (
			seq         INTEGER PRIMARY KEY AUTOINCREMENT,
			id          TEXT NOT NULL UNIQUE,
			user_id     TEXT NOT NULL,
			amount      INTEGER NOT NULL,
			type        TEXT NOT NULL,
			source      TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			timestamp   INTEGER NOT NULL,
			metadata    TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_user ON points_ledger(user_id, seq)`,

		// Challenge standings, rewritten from the aggregate on every save.
		`CREATE TABLE IF NOT EXISTS challenge_progress (
			challenge_id TEXT NOT NULL,
			user_id      TEXT NOT NULL,
			progress     INTEGER NOT NULL,
			completed    BOOLEAN NOT NULL DEFAULT 0,
			completed_at INTEGER,
			level        INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (challenge_id, user_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_challenge_rank ON challenge_progress(challenge_id, progress DESC)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func nullableUnixNano(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}
