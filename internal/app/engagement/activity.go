package engagement

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tutu-network/rewards/internal/domain"
)

// log appends one activity-log line to the working aggregate. The log is
// append-only: entries are never edited or removed.
func (u *unit) log(typ domain.ActivityType, description string, points int64, metadata map[string]string) domain.ActivityLogEntry {
	entry := domain.ActivityLogEntry{
		ID:          uuid.New().String(),
		Timestamp:   u.now,
		Type:        typ,
		Description: description,
		Points:      points,
		Metadata:    copyMetadata(metadata),
	}
	u.progress.ActivityLog = append(u.progress.ActivityLog, entry)
	u.effects.Activity = append(u.effects.Activity, entry)
	u.touch()
	return entry
}

// RecentActivity returns up to limit entries newest first (limit <= 0
// means all). Entries sharing a timestamp keep reverse insertion order.
func RecentActivity(p *domain.UserProgress, limit int) []domain.ActivityLogEntry {
	n := len(p.ActivityLog)
	out := make([]domain.ActivityLogEntry, n)
	for i, e := range p.ActivityLog {
		out[n-1-i] = e
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// window bounds a metric computation. A nil window is all time.
type window struct {
	from, to time.Time
}

func (w *window) contains(t time.Time) bool {
	if w == nil {
		return true
	}
	return !t.Before(w.from) && !t.After(w.to)
}

// countActivity counts log entries of typ inside w.
func countActivity(p *domain.UserProgress, typ domain.ActivityType, w *window) int {
	n := 0
	for _, e := range p.ActivityLog {
		if e.Type == typ && w.contains(e.Timestamp) {
			n++
		}
	}
	return n
}

// distinctHabits counts distinct habit names among habit_completed
// entries inside w.
func distinctHabits(p *domain.UserProgress, w *window) int {
	seen := make(map[string]struct{})
	for _, e := range p.ActivityLog {
		if e.Type != domain.ActivityHabitCompleted || !w.contains(e.Timestamp) {
			continue
		}
		if name := e.Metadata["habit"]; name != "" {
			seen[name] = struct{}{}
		}
	}
	return len(seen)
}

// metricValue computes m for the working aggregate. Habit, check-in and
// challenge counts are always recomputed from the activity log and states,
// never kept as separate counters.
func (u *unit) metricValue(m domain.Metric, w *window) int {
	p := u.progress
	switch m {
	case domain.MetricHabitsCompleted:
		return countActivity(p, domain.ActivityHabitCompleted, w)
	case domain.MetricDistinctHabits:
		return distinctHabits(p, w)
	case domain.MetricCheckIns:
		return countActivity(p, domain.ActivityCheckIn, w)
	case domain.MetricTotalPoints:
		if w == nil {
			return clampInt(u.ledger.Total())
		}
		return clampInt(u.ledger.CreditedBetween(w.from, w.to))
	case domain.MetricCurrentStreak:
		return p.Streak.CurrentStreak
	case domain.MetricBestStreak:
		return p.Streak.BestStreak
	case domain.MetricChallengesCompleted:
		n := 0
		for _, c := range p.Challenges {
			if c.Completed && w.contains(c.CompletedAt) {
				n++
			}
		}
		return n
	case domain.MetricLevel:
		return p.Level
	}
	return 0
}

func clampInt(v int64) int {
	const maxInt = int64(^uint(0) >> 1)
	if v > maxInt {
		return int(maxInt)
	}
	if v < 0 {
		return 0
	}
	return int(v)
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
