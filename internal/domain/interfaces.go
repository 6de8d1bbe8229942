package domain

import (
	"context"
	"time"
)

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; the application layer depends on them.

// ProgressStore persists user aggregates and their ledgers.
// Implemented by infra/sqlite, infra/postgres and infra/memory.
type ProgressStore interface {
	// Snapshot returns the committed aggregate for userID and its full
	// ledger, newest first, from a single consistent read: both reflect
	// the same commit. An unknown user gets a fresh NewUserProgress and
	// an empty ledger.
	Snapshot(ctx context.Context, userID string) (*UserProgress, []PointsTransaction, error)

	// Save appends the given transactions and replaces the aggregate in one
	// atomic unit. p.Version must be one greater than the stored version,
	// otherwise ErrVersionConflict is returned and nothing is written.
	Save(ctx context.Context, p *UserProgress, appended []PointsTransaction) error

	// Leaderboard ranks users by total points, highest first.
	Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error)

	// ChallengeLeaderboard ranks participants of a challenge by progress
	// and returns the participant count.
	ChallengeLeaderboard(ctx context.Context, challengeID string, limit int) ([]LeaderboardEntry, int, error)

	// Ping checks store connectivity.
	Ping(ctx context.Context) error
}

// Clock supplies the current time. Tests inject a fixed clock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time { return f() }
