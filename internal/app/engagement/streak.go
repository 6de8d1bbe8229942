package engagement

import (
	"fmt"
	"time"

	"github.com/tutu-network/rewards/internal/domain"
)

const dayLayout = "2006-01-02"

// StreakTracker applies daily check-ins to a StreakState.
// Days are calendar days in the tracker's location: two check-ins on the
// same local date count once, consecutive dates extend the streak, and a
// gap of two or more days resets it to 1. Resets are silent and never
// clear recorded milestones.
type StreakTracker struct {
	milestones []domain.Milestone // ascending by Days
	loc        *time.Location
}

// NewStreakTracker creates a tracker. A nil location means UTC.
func NewStreakTracker(milestones []domain.Milestone, loc *time.Location) *StreakTracker {
	if loc == nil {
		loc = time.UTC
	}
	return &StreakTracker{milestones: milestones, loc: loc}
}

// StreakResult is the outcome of one check-in.
type StreakResult struct {
	Streak domain.StreakState
	// Changed is false for a repeat check-in on the same day.
	Changed bool
	// Milestone is set when this check-in reached a milestone for the
	// first time; the caller pays its bonus.
	Milestone *domain.Milestone
}

// CheckIn records a check-in at t against s and returns the new state.
// s is not modified. A check-in on a day before the last one returns
// ErrInvalidCheckIn.
func (t *StreakTracker) CheckIn(s domain.StreakState, at time.Time) (StreakResult, error) {
	day := t.dayNumber(at)

	next := s
	next.Milestones = append([]int(nil), s.Milestones...)

	if s.LastCompletedAt.IsZero() {
		next.CurrentStreak = 1
	} else {
		last := t.dayNumber(s.LastCompletedAt)
		switch gap := day - last; {
		case gap < 0:
			return StreakResult{Streak: s}, fmt.Errorf("%w: check-in on %s is before last check-in on %s",
				domain.ErrInvalidCheckIn, t.date(at), t.date(s.LastCompletedAt))
		case gap == 0:
			return StreakResult{Streak: s}, nil
		case gap == 1:
			next.CurrentStreak++
		default:
			next.CurrentStreak = 1
		}
	}

	next.LastCompletedAt = at
	if next.CurrentStreak > next.BestStreak {
		next.BestStreak = next.CurrentStreak
	}

	// Trailing week: keep check-ins within the 7 calendar days ending today.
	recent := make([]string, 0, 7)
	for _, d := range s.RecentCheckIns {
		n, err := parseDay(d)
		if err != nil || n < day-6 || n >= day {
			continue
		}
		recent = append(recent, d)
	}
	next.RecentCheckIns = append(recent, t.date(at))
	next.WeeklyStreak = len(next.RecentCheckIns)

	res := StreakResult{Streak: next, Changed: true}
	for i := range t.milestones {
		m := t.milestones[i]
		if m.Days == next.CurrentStreak && !next.HasMilestone(m.Days) {
			next.Milestones = append(next.Milestones, m.Days)
			res.Streak = next
			res.Milestone = &m
			break
		}
	}
	return res, nil
}

// NextMilestone returns the smallest milestone above current not yet
// recorded in s.
func (t *StreakTracker) NextMilestone(s domain.StreakState) (domain.Milestone, bool) {
	for _, m := range t.milestones {
		if m.Days > s.CurrentStreak && !s.HasMilestone(m.Days) {
			return m, true
		}
	}
	return domain.Milestone{}, false
}

// dayNumber returns the local calendar date of ts as days since 1970-01-01.
func (t *StreakTracker) dayNumber(ts time.Time) int64 {
	y, m, d := ts.In(t.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}

func (t *StreakTracker) date(ts time.Time) string {
	return ts.In(t.loc).Format(dayLayout)
}

func parseDay(s string) (int64, error) {
	d, err := time.Parse(dayLayout, s)
	if err != nil {
		return 0, err
	}
	return d.Unix() / 86400, nil
}
