package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutu-network/rewards/internal/domain"
)

func tx(id string, amount int64) domain.PointsTransaction {
	return domain.PointsTransaction{
		ID:        id,
		UserID:    "u1",
		Amount:    amount,
		Type:      domain.TxEarned,
		Source:    domain.SourceHabit,
		Timestamp: time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestStore_SnapshotUnknownUser(t *testing.T) {
	s := New()
	p, txs, err := s.Snapshot(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, txs)
	assert.Equal(t, "nobody", p.UserID)
	assert.Equal(t, 1, p.Level)
	assert.Zero(t, p.Version)
}

func TestStore_SaveAndSnapshot(t *testing.T) {
	ctx := context.Background()
	s := New()

	p := domain.NewUserProgress("u1")
	p.TotalPoints = 30
	p.Version = 1
	require.NoError(t, s.Save(ctx, p, []domain.PointsTransaction{tx("a", 10), tx("b", 20)}))

	got, txs, err := s.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(30), got.TotalPoints)
	assert.Equal(t, int64(1), got.Version)
	require.Len(t, txs, 2)
	assert.Equal(t, "b", txs[0].ID, "newest first")
}

func TestStore_SnapshotReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := New()

	p := domain.NewUserProgress("u1")
	p.Version = 1
	p.Streak.Milestones = []int{3}
	require.NoError(t, s.Save(ctx, p, nil))

	p.Streak.Milestones[0] = 99
	got, _, _ := s.Snapshot(ctx, "u1")
	got.Streak.Milestones = append(got.Streak.Milestones, 7)

	again, _, _ := s.Snapshot(ctx, "u1")
	assert.Equal(t, []int{3}, again.Streak.Milestones)
}

func TestStore_VersionConflict(t *testing.T) {
	ctx := context.Background()
	s := New()

	p := domain.NewUserProgress("u1")
	p.Version = 1
	require.NoError(t, s.Save(ctx, p, []domain.PointsTransaction{tx("a", 10)}))

	stale := domain.NewUserProgress("u1")
	stale.Version = 1
	err := s.Save(ctx, stale, []domain.PointsTransaction{tx("b", 5)})
	require.ErrorIs(t, err, domain.ErrVersionConflict)

	_, txs, _ := s.Snapshot(ctx, "u1")
	assert.Len(t, txs, 1, "conflicting save must not append")
}

// Every snapshot pairs an aggregate with exactly the ledger it was saved
// with, even while saves land concurrently.
func TestStore_SnapshotConsistentUnderConcurrentSaves(t *testing.T) {
	ctx := context.Background()
	s := New()
	const saves = 200

	done := make(chan struct{})
	go func() {
		defer close(done)
		for v := int64(1); v <= saves; v++ {
			p := domain.NewUserProgress("u1")
			p.Version = v
			p.Balance = v
			if err := s.Save(ctx, p, []domain.PointsTransaction{tx(fmt.Sprintf("t%d", v), 1)}); err != nil {
				t.Errorf("Save(v%d) error: %v", v, err)
				return
			}
		}
	}()

	for {
		p, txs, err := s.Snapshot(ctx, "u1")
		require.NoError(t, err)
		var sum int64
		for _, e := range txs {
			sum += e.Amount
		}
		require.Equal(t, p.Balance, sum, "version %d", p.Version)
		require.Equal(t, p.Version, int64(len(txs)))

		select {
		case <-done:
			return
		default:
		}
	}
}

func TestStore_InjectedLoadFailure(t *testing.T) {
	s := New()
	boom := errors.New("io error")
	s.FailLoads(boom)
	_, _, err := s.Snapshot(context.Background(), "u1")
	require.ErrorIs(t, err, boom)
}

func TestStore_InjectedSaveFailure(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("disk full")
	s.FailSaves(boom)

	p := domain.NewUserProgress("u1")
	p.Version = 1
	require.ErrorIs(t, s.Save(ctx, p, nil), boom)
	assert.Zero(t, s.Users())

	s.FailSaves(nil)
	require.NoError(t, s.Save(ctx, p, nil))
	assert.Equal(t, 1, s.Users())
}

func TestStore_Leaderboards(t *testing.T) {
	ctx := context.Background()
	s := New()

	for i, u := range []struct {
		id       string
		points   int64
		progress int
	}{
		{"alice", 300, 4},
		{"bob", 500, 0},
		{"carol", 300, 9},
	} {
		p := domain.NewUserProgress(u.id)
		p.Version = 1
		p.TotalPoints = u.points
		if u.progress > 0 {
			p.Challenges = []domain.ChallengeState{{ID: "sprint", Progress: u.progress, MaxProgress: 10, Started: true}}
		}
		require.NoError(t, s.Save(ctx, p, nil), "user %d", i)
	}

	board, err := s.Leaderboard(ctx, 2)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, "bob", board[0].UserID)
	assert.Equal(t, 1, board[0].Rank)
	assert.Equal(t, "alice", board[1].UserID, "ties break by user id")

	cb, n, err := s.ChallengeLeaderboard(ctx, "sprint", 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, cb, 2)
	assert.Equal(t, "carol", cb[0].UserID)
	assert.Equal(t, int64(9), cb[0].Score)
}
