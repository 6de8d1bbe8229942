package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tutu-network/rewards/internal/domain"
)

// ─── Progress Store ─────────────────────────────────────────────────────────

// Snapshot reads the aggregate and its ledger inside one read
// transaction, so both come from the same commit.
func (d *DB) Snapshot(ctx context.Context, userID string) (*domain.UserProgress, []domain.PointsTransaction, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()

	p, err := loadProgress(ctx, tx, userID)
	if err != nil {
		return nil, nil, err
	}
	txs, err := loadLedger(ctx, tx, userID)
	if err != nil {
		return nil, nil, err
	}
	return p, txs, nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// loadProgress returns the committed aggregate, or a fresh one for an
// unknown user.
func loadProgress(ctx context.Context, q querier, userID string) (*domain.UserProgress, error) {
	var data string
	err := q.QueryRowContext(ctx,
		`SELECT data FROM progress WHERE user_id = ?`, userID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewUserProgress(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load progress %s: %w", userID, err)
	}

	var p domain.UserProgress
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("decode progress %s: %w", userID, err)
	}
	return &p, nil
}

// loadLedger returns every ledger entry newest first.
func loadLedger(ctx context.Context, q querier, userID string) ([]domain.PointsTransaction, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, user_id, amount, type, source, description, timestamp, metadata
		 FROM points_ledger WHERE user_id = ? ORDER BY seq DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query ledger %s: %w", userID, err)
	}
	defer rows.Close()

	var txs []domain.PointsTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// Save appends the new ledger entries and replaces the aggregate in one
// transaction. The stored version must be p.Version-1.
func (d *DB) Save(ctx context.Context, p *domain.UserProgress, appended []domain.PointsTransaction) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode progress %s: %w", p.UserID, err)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	if err := saveTx(ctx, tx, p, data, appended); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func saveTx(ctx context.Context, tx *sql.Tx, p *domain.UserProgress, data []byte, appended []domain.PointsTransaction) error {
	var stored int64
	err := tx.QueryRowContext(ctx, `SELECT version FROM progress WHERE user_id = ?`, p.UserID).Scan(&stored)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read version %s: %w", p.UserID, err)
	}
	if p.Version != stored+1 {
		return fmt.Errorf("user %s: stored version %d, saving %d: %w", p.UserID, stored, p.Version, domain.ErrVersionConflict)
	}

	for _, e := range appended {
		meta, err := encodeMetadata(e.Metadata)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO points_ledger (id, user_id, amount, type, source, description, timestamp, metadata)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.UserID, e.Amount, string(e.Type), string(e.Source), e.Description, unixNano(e.Timestamp), meta,
		)
		if err != nil {
			return fmt.Errorf("append ledger %s: %w", e.ID, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO progress (user_id, version, total_points, balance, level, data, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			version=excluded.version,
			total_points=excluded.total_points,
			balance=excluded.balance,
			level=excluded.level,
			data=excluded.data,
			updated_at=excluded.updated_at`,
		p.UserID, p.Version, p.TotalPoints, p.Balance, p.Level, string(data), unixNano(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert progress %s: %w", p.UserID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM challenge_progress WHERE user_id = ?`, p.UserID); err != nil {
		return fmt.Errorf("clear challenges %s: %w", p.UserID, err)
	}
	for _, c := range p.Challenges {
		if !c.Started {
			continue
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO challenge_progress (challenge_id, user_id, progress, completed, completed_at, level)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, p.UserID, c.Progress, c.Completed, nullableUnixNano(c.CompletedAt), p.Level,
		)
		if err != nil {
			return fmt.Errorf("write challenge %s/%s: %w", c.ID, p.UserID, err)
		}
	}
	return nil
}

// Leaderboard ranks users by total points, ties by user id.
func (d *DB) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT user_id, total_points, level FROM progress
		 ORDER BY total_points DESC, user_id ASC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()
	return scanBoard(rows)
}

// ChallengeLeaderboard ranks a challenge's participants by progress.
func (d *DB) ChallengeLeaderboard(ctx context.Context, challengeID string, limit int) ([]domain.LeaderboardEntry, int, error) {
	var participants int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM challenge_progress WHERE challenge_id = ?`, challengeID,
	).Scan(&participants)
	if err != nil {
		return nil, 0, fmt.Errorf("count participants %s: %w", challengeID, err)
	}

	if limit <= 0 {
		limit = -1
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT user_id, progress, level FROM challenge_progress
		 WHERE challenge_id = ?
		 ORDER BY progress DESC, user_id ASC LIMIT ?`, challengeID, limit,
	)
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

func scanBoard(rows *sql.Rows) ([]domain.LeaderboardEntry, error) {
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

func scanTransaction(s scanner) (domain.PointsTransaction, error) {
	var tx domain.PointsTransaction
	var ts int64
	var meta sql.NullString
	err := s.Scan(&tx.ID, &tx.UserID, &tx.Amount, &tx.Type, &tx.Source, &tx.Description, &ts, &meta)
	if err != nil {
		return tx, err
	}
	tx.Timestamp = fromUnixNano(ts)
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &tx.Metadata); err != nil {
			return tx, fmt.Errorf("decode metadata %s: %w", tx.ID, err)
		}
	}
	return tx, nil
}

func encodeMetadata(m map[string]string) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode metadata: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
