package engagement

import (
	"fmt"
	"strconv"
	"time"

	"github.com/tutu-network/rewards/internal/app/ledger"
	"github.com/tutu-network/rewards/internal/domain"
)

// EventKind names a progression event that can move a metric.
type EventKind string

const (
	EventHabitCompleted     EventKind = "habit_completed"
	EventPointsAwarded      EventKind = "points_awarded"
	EventCheckIn            EventKind = "check_in"
	EventLevelUp            EventKind = "level_up"
	EventChallengeCompleted EventKind = "challenge_completed"
)

// Event is queued by a command and drained by the engine until no more
// events are produced.
type Event struct {
	Kind   EventKind
	Habit  string
	Amount int64
}

// triggers lists the metrics each event kind can move.
var triggers = map[EventKind][]domain.Metric{
	EventHabitCompleted:     {domain.MetricHabitsCompleted, domain.MetricDistinctHabits},
	EventPointsAwarded:      {domain.MetricTotalPoints},
	EventCheckIn:            {domain.MetricCurrentStreak, domain.MetricBestStreak, domain.MetricCheckIns},
	EventLevelUp:            {domain.MetricLevel},
	EventChallengeCompleted: {domain.MetricChallengesCompleted},
}

// Triggers reports whether an event of kind k can move metric m.
func (k EventKind) Triggers(m domain.Metric) bool {
	for _, t := range triggers[k] {
		if t == m {
			return true
		}
	}
	return false
}

// unit is the working state of one command: a private copy of the
// aggregate, the user's ledger and the effects produced so far. Nothing in
// a unit is visible to other callers until the engine commits it.
type unit struct {
	e        *Engine
	progress *domain.UserProgress
	ledger   *ledger.Ledger
	now      time.Time
	effects  *Effects
	queue    []Event
	points   int64 // display total last seen by syncLevel
	dirty    bool

	challengeID string // challenge reported in Effects.Challenge
}

func (u *unit) push(ev Event) {
	u.queue = append(u.queue, ev)
}

func (u *unit) touch() {
	u.dirty = true
}

// award appends a ledger entry and its activity-log line, then brings the
// level up to date. Credits queue a PointsAwarded event.
func (u *unit) award(amount int64, typ domain.TxType, source domain.TxSource, activity domain.ActivityType, description string, metadata map[string]string) error {
	tx, err := u.ledger.Append(amount, typ, source, description, metadata)
	if err != nil {
		return err
	}
	u.touch()
	u.effects.Transactions = append(u.effects.Transactions, tx)
	u.log(activity, description, amount, metadata)

	if amount > 0 {
		u.push(Event{Kind: EventPointsAwarded, Amount: amount})
	}
	u.syncLevel()
	return nil
}

// syncLevel recomputes the derived totals and, on a level change, logs it
// and grants the rewards of every level entered.
func (u *unit) syncLevel() {
	p := u.progress
	total := u.ledger.Total()
	p.TotalPoints = total
	p.Balance = u.ledger.Balance()

	lvl, crossed := u.e.levels.DetectLevelChange(u.points, total)
	u.points = total
	if lvl == nil {
		return
	}

	from := p.Level
	p.Level = lvl.Level
	p.LevelTitle = lvl.Title

	if lvl.Level > from {
		for _, c := range crossed {
			u.log(domain.ActivityLevelUp, fmt.Sprintf("Reached level %d: %s", c.Level, c.Title), 0,
				map[string]string{"level": strconv.Itoa(c.Level)})
			grantLevelRewards(u, c)
		}
		u.push(Event{Kind: EventLevelUp})
	} else {
		u.log(domain.ActivityLevelDown, fmt.Sprintf("Dropped to level %d: %s", lvl.Level, lvl.Title), 0,
			map[string]string{"level": strconv.Itoa(lvl.Level)})
	}

	lc := u.effects.LevelChange
	if lc == nil {
		lc = &domain.LevelChange{From: from}
		u.effects.LevelChange = lc
	}
	lc.To = lvl.Level
	lc.Title = lvl.Title
	if lvl.Level > from {
		lc.Crossed = append(lc.Crossed, crossed...)
	}
}
