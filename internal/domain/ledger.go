package domain

import "time"

// ─── Points Ledger Types ────────────────────────────────────────────────────

// TxType classifies a points transaction. The sign of Amount must match it.
type TxType string

const (
	TxEarned  TxType = "earned"
	TxSpent   TxType = "spent"
	TxBonus   TxType = "bonus"
	TxExpired TxType = "expired"
)

// Valid reports whether t is a known transaction type.
func (t TxType) Valid() bool {
	switch t {
	case TxEarned, TxSpent, TxBonus, TxExpired:
		return true
	}
	return false
}

// Credits reports whether the type adds points (earned, bonus).
func (t TxType) Credits() bool {
	return t == TxEarned || t == TxBonus
}

// TxSource records what produced a transaction.
type TxSource string

const (
	SourceHabit       TxSource = "habit"
	SourceStreak      TxSource = "streak"
	SourceChallenge   TxSource = "challenge"
	SourceAchievement TxSource = "achievement"
	SourceReward      TxSource = "reward"
	SourceSystem      TxSource = "system"
)

// Valid reports whether s is a known source.
func (s TxSource) Valid() bool {
	switch s {
	case SourceHabit, SourceStreak, SourceChallenge, SourceAchievement, SourceReward, SourceSystem:
		return true
	}
	return false
}

// PointsTransaction is one immutable ledger entry.
type PointsTransaction struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	Amount      int64             `json:"amount"`
	Type        TxType            `json:"type"`
	Source      TxSource          `json:"source"`
	Description string            `json:"description"`
	Timestamp   time.Time         `json:"timestamp"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}
