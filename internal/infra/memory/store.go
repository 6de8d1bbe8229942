// Package memory provides an in-process ProgressStore.
// It keeps committed snapshots only: every Snapshot returns a deep copy, and
// Save replaces the snapshot and appends the ledger entries under one lock,
// so readers never observe a half-applied command.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tutu-network/rewards/internal/domain"
)

type record struct {
	progress *domain.UserProgress
	ledger   []domain.PointsTransaction // oldest first
}

// Store is a map-backed ProgressStore. The zero value is not usable; call New.
type Store struct {
	mu    sync.RWMutex
	users map[string]*record

	// Injected failures for tests.
	saveErr error
	loadErr error
	pingErr error
}

// New creates an empty store.
func New() *Store {
	return &Store{users: make(map[string]*record)}
}

// FailSaves makes every Save return err until called again with nil.
func (s *Store) FailSaves(err error) {
	s.mu.Lock()
	s.saveErr = err
	s.mu.Unlock()
}

// FailLoads makes Snapshot return err until called with nil.
func (s *Store) FailLoads(err error) {
	s.mu.Lock()
	s.loadErr = err
	s.mu.Unlock()
}

// FailPings makes Ping return err until called with nil.
func (s *Store) FailPings(err error) {
	s.mu.Lock()
	s.pingErr = err
	s.mu.Unlock()
}

// Snapshot returns a copy of the committed aggregate and its ledger,
// newest first, under one read lock.
func (s *Store) Snapshot(_ context.Context, userID string) (*domain.UserProgress, []domain.PointsTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.loadErr != nil {
		return nil, nil, s.loadErr
	}
	rec, ok := s.users[userID]
	if !ok {
		return domain.NewUserProgress(userID), nil, nil
	}
	txs := make([]domain.PointsTransaction, 0, len(rec.ledger))
	for i := len(rec.ledger) - 1; i >= 0; i-- {
		txs = append(txs, rec.ledger[i])
	}
	return rec.progress.Clone(), txs, nil
}

// Save commits p and appended atomically after a version check.
func (s *Store) Save(_ context.Context, p *domain.UserProgress, appended []domain.PointsTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}

	rec, ok := s.users[p.UserID]
	var stored int64
	if ok {
		stored = rec.progress.Version
	}
	if p.Version != stored+1 {
		return fmt.Errorf("user %s: stored version %d, saving %d: %w", p.UserID, stored, p.Version, domain.ErrVersionConflict)
	}

	if !ok {
		rec = &record{}
		s.users[p.UserID] = rec
	}
	rec.progress = p.Clone()
	rec.ledger = append(rec.ledger, appended...)
	return nil
}

// Leaderboard ranks users by total points, ties by user id.
func (s *Store) Leaderboard(_ context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	board := make([]domain.LeaderboardEntry, 0, len(s.users))
	for id, rec := range s.users {
		board = append(board, domain.LeaderboardEntry{
			UserID: id,
			Score:  rec.progress.TotalPoints,
			Level:  rec.progress.Level,
		})
	}
	return rank(board, limit), nil
}

// ChallengeLeaderboard ranks users who started challengeID by progress.
func (s *Store) ChallengeLeaderboard(_ context.Context, challengeID string, limit int) ([]domain.LeaderboardEntry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var board []domain.LeaderboardEntry
	for id, rec := range s.users {
		st := rec.progress.Challenge(challengeID)
		if st == nil || !st.Started {
			continue
		}
		board = append(board, domain.LeaderboardEntry{
			UserID: id,
			Score:  int64(st.Progress),
			Level:  rec.progress.Level,
		})
	}
	participants := len(board)
	return rank(board, limit), participants, nil
}

// Ping reports the injected ping error, if any.
func (s *Store) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pingErr
}

// Users returns the number of users with committed state.
func (s *Store) Users() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

func rank(board []domain.LeaderboardEntry, limit int) []domain.LeaderboardEntry {
	sort.Slice(board, func(i, j int) bool {
		if board[i].Score != board[j].Score {
			return board[i].Score > board[j].Score
		}
		return board[i].UserID < board[j].UserID
	})
	if limit > 0 && len(board) > limit {
		board = board[:limit]
	}
	for i := range board {
		board[i].Rank = i + 1
	}
	return board
}
