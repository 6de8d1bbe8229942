// Package ledger implements the append-only points ledger.
// The ledger is the single source of a user's point total: every award,
// spend, bonus and expiry is an immutable entry, and the total is always
// recomputed as the sum of entries. No update or delete operation exists.
package ledger

import (
	"fmt"
	"iter"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/tutu-network/rewards/internal/domain"
)

// Ledger is one user's working ledger: the committed history loaded from a
// store plus the entries appended by the command in progress.
type Ledger struct {
	userID  string
	clock   domain.Clock
	entries []domain.PointsTransaction // oldest first
	pending int                        // index of the first uncommitted entry
	balance int64
}

// New builds a ledger over committed history as returned by
// ProgressStore.Snapshot (newest first).
func New(userID string, clock domain.Clock, committed []domain.PointsTransaction) *Ledger {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	l := &Ledger{
		userID:  userID,
		clock:   clock,
		entries: make([]domain.PointsTransaction, 0, len(committed)+4),
	}
	for i := len(committed) - 1; i >= 0; i-- {
		l.entries = append(l.entries, committed[i])
		l.balance += committed[i].Amount
	}
	l.pending = len(l.entries)
	return l
}

// Validate checks that amount's sign agrees with typ and that typ and
// source are known. Earned and bonus entries are >= 0; spent and expired <= 0.
func Validate(amount int64, typ domain.TxType, source domain.TxSource) error {
	if !typ.Valid() {
		return fmt.Errorf("%w: unknown type %q", domain.ErrInvalidTransaction, typ)
	}
	if !source.Valid() {
		return fmt.Errorf("%w: unknown source %q", domain.ErrInvalidTransaction, source)
	}
	if typ.Credits() && amount < 0 {
		return fmt.Errorf("%w: %s amount must be >= 0, got %d", domain.ErrInvalidTransaction, typ, amount)
	}
	if !typ.Credits() && amount > 0 {
		return fmt.Errorf("%w: %s amount must be <= 0, got %d", domain.ErrInvalidTransaction, typ, amount)
	}
	return nil
}

// Append records a new entry and returns it.
func (l *Ledger) Append(amount int64, typ domain.TxType, source domain.TxSource, description string, metadata map[string]string) (domain.PointsTransaction, error) {
	if err := Validate(amount, typ, source); err != nil {
		return domain.PointsTransaction{}, err
	}

	tx := domain.PointsTransaction{
		ID:          uuid.New().String(),
		UserID:      l.userID,
		Amount:      amount,
		Type:        typ,
		Source:      source,
		Description: description,
		Timestamp:   l.clock.Now(),
		Metadata:    copyMetadata(metadata),
	}
	l.entries = append(l.entries, tx)
	l.balance += amount

	if l.balance < 0 {
		log.Printf("[ledger] user %s running balance is negative: %d", l.userID, l.balance)
	}
	return tx, nil
}

// Balance returns the signed sum of all entries.
func (l *Ledger) Balance() int64 {
	return l.balance
}

// Total returns the displayed point total: the sum floored at zero.
func (l *Ledger) Total() int64 {
	if l.balance < 0 {
		return 0
	}
	return l.balance
}

// Pending returns the entries appended since the ledger was loaded,
// oldest first. These are what a store commit must append.
func (l *Ledger) Pending() []domain.PointsTransaction {
	out := make([]domain.PointsTransaction, len(l.entries)-l.pending)
	copy(out, l.entries[l.pending:])
	return out
}

// History returns up to limit entries newest first (limit <= 0 means all).
// The sequence walks a snapshot taken at call time, so it can be ranged
// over repeatedly; entries appended later are not visible through it.
func (l *Ledger) History(limit int) iter.Seq[domain.PointsTransaction] {
	snapshot := make([]domain.PointsTransaction, len(l.entries))
	copy(snapshot, l.entries)

	return func(yield func(domain.PointsTransaction) bool) {
		n := 0
		for i := len(snapshot) - 1; i >= 0; i-- {
			if limit > 0 && n >= limit {
				return
			}
			if !yield(snapshot[i]) {
				return
			}
			n++
		}
	}
}

// CreditedBetween sums positive entries with from <= timestamp <= to.
func (l *Ledger) CreditedBetween(from, to time.Time) int64 {
	var sum int64
	for _, e := range l.entries {
		if e.Amount <= 0 || e.Timestamp.Before(from) || e.Timestamp.After(to) {
			continue
		}
		sum += e.Amount
	}
	return sum
}

func copyMetadata(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
