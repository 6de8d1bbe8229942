// Package postgres provides a PostgreSQL-backed ProgressStore for
// deployments that share one progress database between several engines.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tutu-network/rewards/internal/domain"
)

// Conn is the subset of pgxpool.Pool the store uses. pgxmock pools
// satisfy it in tests.
type Conn interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements domain.ProgressStore on PostgreSQL.
type Store struct {
	conn Conn
	pool *pgxpool.Pool
}

// Open connects to dsn, pings and migrates the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &Store{conn: pool, pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing connection. The caller owns its lifecycle.
func New(conn Conn) *Store {
	return &Store{conn: conn}
}

// Close releases the pool opened by Open.
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS progress (
		user_id      TEXT PRIMARY KEY,
		version      BIGINT NOT NULL,
		total_points BIGINT NOT NULL DEFAULT 0,
		balance      BIGINT NOT NULL DEFAULT 0,
		level        INTEGER NOT NULL DEFAULT 1,
		data         JSONB NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_progress_points ON progress(total_points DESC, user_id)`,
	`CREATE TABLE IF NOT EXISTS points_ledger (
		seq         BIGSERIAL PRIMARY KEY,
		id          TEXT NOT NULL UNIQUE,
		user_id     TEXT NOT NULL,
		amount      BIGINT NOT NULL,
		type        TEXT NOT NULL,
		source      TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		timestamp   TIMESTAMPTZ NOT NULL,
		metadata    JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_user ON points_ledger(user_id, seq)`,
	`CREATE TABLE IF NOT EXISTS challenge_progress (
		challenge_id TEXT NOT NULL,
		user_id      TEXT NOT NULL,
		progress     INTEGER NOT NULL,
		completed    BOOLEAN NOT NULL DEFAULT FALSE,
		completed_at TIMESTAMPTZ,
		level        INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (challenge_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_challenge_rank ON challenge_progress(challenge_id, progress DESC)`,
}

// Migrate runs idempotent schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	for _, m := range migrations {
		if _, err := s.conn.Exec(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// ─── Progress Store ─────────────────────────────────────────────────────────

const (
	loadQuery = `SELECT data FROM progress WHERE user_id = $1`

	ledgerQuery = `SELECT id, user_id, amount, type, source, description, timestamp, metadata
		FROM points_ledger WHERE user_id = $1 ORDER BY seq DESC`

	// The WHERE clause turns a stale update into zero affected rows.
	upsertProgressQuery = `INSERT INTO progress (user_id, version, total_points, balance, level, data, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			version = EXCLUDED.version,
			total_points = EXCLUDED.total_points,
			balance = EXCLUDED.balance,
			level = EXCLUDED.level,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
		WHERE progress.version = EXCLUDED.version - 1`

	insertLedgerQuery = `INSERT INTO points_ledger (id, user_id, amount, type, source, description, timestamp, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	clearChallengesQuery = `DELETE FROM challenge_progress WHERE user_id = $1`

	insertChallengeQuery = `INSERT INTO challenge_progress (challenge_id, user_id, progress, completed, completed_at, level)
		VALUES ($1, $2, $3, $4, $5, $6)`

	leaderboardQuery = `SELECT user_id, total_points, level FROM progress
		ORDER BY total_points DESC, user_id ASC LIMIT $1`

	participantsQuery = `SELECT COUNT(*) FROM challenge_progress WHERE challenge_id = $1`

	challengeBoardQuery = `SELECT user_id, progress, level FROM challenge_progress
		WHERE challenge_id = $1 ORDER BY progress DESC, user_id ASC LIMIT $2`
)

// uniqueViolation is the SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

// snapshotTx gives both snapshot statements the same view of the database.
var snapshotTx = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

// Snapshot reads the aggregate and its ledger in one repeatable-read
// transaction, so both come from the same commit.
func (s *Store) Snapshot(ctx context.Context, userID string) (*domain.UserProgress, []domain.PointsTransaction, error) {
	tx, err := s.conn.BeginTx(ctx, snapshotTx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin snapshot: %w", err)
	}

	p, err := loadProgress(ctx, tx, userID)
	if err != nil {
		tx.Rollback(ctx)
		return nil, nil, err
	}
	txs, err := loadLedger(ctx, tx, userID)
	if err != nil {
		tx.Rollback(ctx)
		return nil, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit snapshot: %w", err)
	}
	return p, txs, nil
}

// querier is satisfied by Conn and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// loadProgress returns the committed aggregate, or a fresh one for an
// unknown user.
func loadProgress(ctx context.Context, q querier, userID string) (*domain.UserProgress, error) {
	var data []byte
	err := q.QueryRow(ctx, loadQuery, userID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NewUserProgress(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load progress %s: %w", userID, err)
	}

	var p domain.UserProgress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode progress %s: %w", userID, err)
	}
	return &p, nil
}

// loadLedger returns every ledger entry newest first.
func loadLedger(ctx context.Context, q querier, userID string) ([]domain.PointsTransaction, error) {
	rows, err := q.Query(ctx, ledgerQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("query ledger %s: %w", userID, err)
	}
	defer rows.Close()

	var txs []domain.PointsTransaction
	for rows.Next() {
		var (
			tx          domain.PointsTransaction
			typ, source string
			meta        []byte
		)
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Amount, &typ, &source, &tx.Description, &tx.Timestamp, &meta); err != nil {
			return nil, fmt.Errorf("scan ledger %s: %w", userID, err)
		}
		tx.Type = domain.TxType(typ)
		tx.Source = domain.TxSource(source)
		tx.Timestamp = tx.Timestamp.UTC()
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &tx.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata %s: %w", tx.ID, err)
			}
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// Save replaces the aggregate and appends the new ledger entries in one
// transaction. The stored version must be p.Version-1.
func (s *Store) Save(ctx context.Context, p *domain.UserProgress, appended []domain.PointsTransaction) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode progress %s: %w", p.UserID, err)
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := saveTx(ctx, tx, p, data, appended); err != nil {
		tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func saveTx(ctx context.Context, tx pgx.Tx, p *domain.UserProgress, data []byte, appended []domain.PointsTransaction) error {
	tag, err := tx.Exec(ctx, upsertProgressQuery,
		p.UserID, p.Version, p.TotalPoints, p.Balance, p.Level, data, p.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert progress %s: %w", p.UserID, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("user %s: saving version %d: %w", p.UserID, p.Version, domain.ErrVersionConflict)
	}

	for _, e := range appended {
		var meta []byte
		if len(e.Metadata) > 0 {
			if meta, err = json.Marshal(e.Metadata); err != nil {
				return fmt.Errorf("encode metadata %s: %w", e.ID, err)
			}
		}
		_, err := tx.Exec(ctx, insertLedgerQuery,
			e.ID, e.UserID, e.Amount, string(e.Type), string(e.Source), e.Description, e.Timestamp.UTC(), meta,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return fmt.Errorf("duplicate ledger entry %s: %w", e.ID, domain.ErrInvalidTransaction)
			}
			return fmt.Errorf("append ledger %s: %w", e.ID, err)
		}
	}

	if _, err := tx.Exec(ctx, clearChallengesQuery, p.UserID); err != nil {
		return fmt.Errorf("clear challenges %s: %w", p.UserID, err)
	}
	for _, c := range p.Challenges {
		if !c.Started {
			continue
		}
		var completedAt *time.Time
		if !c.CompletedAt.IsZero() {
			at := c.CompletedAt.UTC()
			completedAt = &at
		}
		_, err := tx.Exec(ctx, insertChallengeQuery,
			c.ID, p.UserID, c.Progress, c.Completed, completedAt, p.Level,
		)
		if err != nil {
			return fmt.Errorf("write challenge %s/%s: %w", c.ID, p.UserID, err)
		}
	}
	return nil
}

// Leaderboard ranks users by total points, ties by user id.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	rows, err := s.conn.Query(ctx, leaderboardQuery, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()
	return scanBoard(rows)
}

// ChallengeLeaderboard ranks a challenge's participants by progress.
func (s *Store) ChallengeLeaderboard(ctx context.Context, challengeID string, limit int) ([]domain.LeaderboardEntry, int, error) {
	var participants int
	if err := s.conn.QueryRow(ctx, participantsQuery, challengeID).Scan(&participants); err != nil {
		return nil, 0, fmt.Errorf("count participants %s: %w", challengeID, err)
	}

	rows, err := s.conn.Query(ctx, challengeBoardQuery, challengeID, limitArg(limit))
	if err != nil {
		return nil, 0, fmt.Errorf("query challenge leaderboard %s: %w", challengeID, err)
	}
	defer rows.Close()

	board, err := scanBoard(rows)
	if err != nil {
		return nil, 0, err
	}
	return board, participants, nil
}

func scanBoard(rows pgx.Rows) ([]domain.LeaderboardEntry, error) {
	var board []domain.LeaderboardEntry
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Score, &e.Level); err != nil {
			return nil, err
		}
		e.Rank = len(board) + 1
		board = append(board, e)
	}
	return board, rows.Err()
}

// limitArg maps a non-positive limit to NULL, which PostgreSQL reads as
// LIMIT ALL.
func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}
