package engagement_test

import (
	"errors"
	"testing"
	"time"

	"github.com/tutu-network/rewards/internal/app/engagement"
	"github.com/tutu-network/rewards/internal/domain"
)

func tracker() *engagement.StreakTracker {
	return engagement.NewStreakTracker([]domain.Milestone{{Days: 3, Bonus: 15}, {Days: 7, Bonus: 50}}, time.UTC)
}

func TestStreak_FirstCheckIn(t *testing.T) {
	res, err := tracker().CheckIn(domain.StreakState{}, time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("CheckIn() error: %v", err)
	}
	if !res.Changed || res.Streak.CurrentStreak != 1 || res.Streak.BestStreak != 1 {
		t.Errorf("first check-in = %+v", res)
	}
	if res.Streak.WeeklyStreak != 1 {
		t.Errorf("WeeklyStreak = %d, want 1", res.Streak.WeeklyStreak)
	}
}

func TestStreak_DoesNotMutateInput(t *testing.T) {
	tr := tracker()
	s := domain.StreakState{Milestones: []int{3}}
	day := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 7; i++ {
		res, err := tr.CheckIn(s, day.AddDate(0, 0, i))
		if err != nil {
			t.Fatalf("CheckIn day %d error: %v", i, err)
		}
		if i == 0 {
			if len(s.Milestones) != 1 {
				t.Fatalf("input milestones modified: %v", s.Milestones)
			}
		}
		s = res.Streak
	}
	if s.CurrentStreak != 7 || len(s.Milestones) != 2 {
		t.Errorf("after a week: streak %d milestones %v", s.CurrentStreak, s.Milestones)
	}
}

func TestStreak_MilestoneOnlyOnce(t *testing.T) {
	tr := tracker()
	base := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

	var s domain.StreakState
	reached := 0
	// Two runs of three days separated by a break.
	for _, offset := range []int{0, 1, 2, 5, 6, 7} {
		res, err := tr.CheckIn(s, base.AddDate(0, 0, offset))
		if err != nil {
			t.Fatalf("CheckIn(+%d) error: %v", offset, err)
		}
		if res.Milestone != nil {
			reached++
		}
		s = res.Streak
	}
	if reached != 1 {
		t.Errorf("milestone reached %d times, want 1", reached)
	}
	if s.CurrentStreak != 3 || s.BestStreak != 3 {
		t.Errorf("streak = %d/%d, want 3/3", s.CurrentStreak, s.BestStreak)
	}
}

func TestStreak_BackdatedRejected(t *testing.T) {
	tr := tracker()
	day := time.Date(2025, 7, 5, 12, 0, 0, 0, time.UTC)
	res, _ := tr.CheckIn(domain.StreakState{}, day)

	_, err := tr.CheckIn(res.Streak, day.AddDate(0, 0, -1))
	if !errors.Is(err, domain.ErrInvalidCheckIn) {
		t.Fatalf("err = %v, want ErrInvalidCheckIn", err)
	}
}

func TestStreak_NextMilestone(t *testing.T) {
	tr := tracker()
	m, ok := tr.NextMilestone(domain.StreakState{CurrentStreak: 4, Milestones: []int{3}})
	if !ok || m.Days != 7 {
		t.Errorf("NextMilestone = %+v %v, want 7", m, ok)
	}
	if _, ok := tr.NextMilestone(domain.StreakState{CurrentStreak: 8, Milestones: []int{3, 7}}); ok {
		t.Error("NextMilestone past the last milestone returned one")
	}
}
