// Package engagement implements the progression engine.
// Levels, achievements, streaks, challenges and rewards are all derived
// from one append-only points ledger plus explicit check-ins. The Engine
// is the only writer of a user's progress: each command works on a
// private copy and commits it together with its new ledger entries, so a
// failed command leaves no trace.
package engagement

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/tutu-network/rewards/internal/app/ledger"
	"github.com/tutu-network/rewards/internal/domain"
)

// DefaultHabitPoints is the base award for completing a habit.
const DefaultHabitPoints int64 = 15

// challengeLeaderboardSize is how many rows Challenges attaches per challenge.
const challengeLeaderboardSize = 10

// Effects reports everything one command changed. Callers use it to
// drive notifications instead of polling for recent unlocks.
type Effects struct {
	UserID               string                     `json:"user_id"`
	NewTotal             int64                      `json:"new_total"`
	Balance              int64                      `json:"balance"`
	Level                int                        `json:"level"`
	LevelChange          *domain.LevelChange        `json:"level_change,omitempty"`
	AchievementsUnlocked []string                   `json:"achievements_unlocked,omitempty"`
	ChallengesCompleted  []string                   `json:"challenges_completed,omitempty"`
	MilestonesReached    []int                      `json:"milestones_reached,omitempty"`
	RewardsGranted       []string                   `json:"rewards_granted,omitempty"`
	Streak               *domain.StreakState        `json:"streak,omitempty"`
	Challenge            *domain.ChallengeState     `json:"challenge,omitempty"`
	Reward               *domain.RewardState        `json:"reward,omitempty"`
	Transactions         []domain.PointsTransaction `json:"transactions,omitempty"`
	Activity             []domain.ActivityLogEntry  `json:"activity,omitempty"`
}

// LeveledUp reports whether the command moved the user up.
func (e *Effects) LeveledUp() bool {
	return e.LevelChange != nil && e.LevelChange.To > e.LevelChange.From
}

// Observer is told about every command outcome. metrics.Recorder
// implements it.
type Observer interface {
	CommandApplied(command string, eff *Effects, elapsed time.Duration)
	CommandFailed(command string, err error, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) CommandApplied(string, *Effects, time.Duration) {}
func (nopObserver) CommandFailed(string, error, time.Duration)     {}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source.
func WithClock(c domain.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLocation sets the time zone that defines a streak day.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) { e.loc = loc }
}

// WithHabitPoints sets the base habit award.
func WithHabitPoints(n int64) Option {
	return func(e *Engine) { e.habitPoints = n }
}

// WithObserver registers an observer for command outcomes.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// Engine is the progression orchestrator.
type Engine struct {
	store        domain.ProgressStore
	catalog      *Catalog
	levels       *LevelTable
	achievements *AchievementRegistry
	challenges   *ChallengeRegistry
	streaks      *StreakTracker

	clock       domain.Clock
	loc         *time.Location
	habitPoints int64
	observer    Observer
	locks       *userLocks
}

// NewEngine wires an engine over store. A nil catalog uses the embedded
// default. Catalog problems are reported here as ErrConfig.
func NewEngine(store domain.ProgressStore, catalog *Catalog, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: progress store is required", domain.ErrConfig)
	}
	if catalog == nil {
		c, err := DefaultCatalog()
		if err != nil {
			return nil, err
		}
		catalog = c
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	levels, err := NewLevelTable(catalog.Levels)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		store:       store,
		catalog:     catalog,
		levels:      levels,
		clock:       domain.SystemClock{},
		loc:         time.UTC,
		habitPoints: DefaultHabitPoints,
		observer:    nopObserver{},
		locks:       newUserLocks(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.habitPoints <= 0 {
		return nil, fmt.Errorf("%w: habit points must be positive, got %d", domain.ErrConfig, e.habitPoints)
	}
	if e.loc == nil {
		e.loc = time.UTC
	}
	if e.clock == nil {
		e.clock = domain.SystemClock{}
	}
	if e.observer == nil {
		e.observer = nopObserver{}
	}

	e.achievements = NewAchievementRegistry(catalog.Achievements)
	e.challenges = NewChallengeRegistry(catalog.Challenges)
	e.streaks = NewStreakTracker(catalog.Milestones, e.loc)
	return e, nil
}

// Catalog returns the catalog the engine runs against.
func (e *Engine) Catalog() *Catalog { return e.catalog }

// Levels returns the level table.
func (e *Engine) Levels() *LevelTable { return e.levels }

// ─── Commands ───────────────────────────────────────────────────────────────

// AwardPoints credits amount (> 0) to the user.
func (e *Engine) AwardPoints(ctx context.Context, userID string, amount int64, source domain.TxSource, description string, metadata map[string]string) (*Effects, error) {
	return e.run(ctx, "award", userID, func(u *unit) error {
		if amount <= 0 {
			return fmt.Errorf("%w: award amount must be positive, got %d", domain.ErrInvalidTransaction, amount)
		}
		if description == "" {
			description = fmt.Sprintf("Earned %d points", amount)
		}
		return u.award(amount, domain.TxEarned, source, domain.ActivityPointsEarned, description, metadata)
	})
}

// SpendPoints debits amount (> 0) from the user. The balance may go
// negative; the displayed total is floored at zero.
func (e *Engine) SpendPoints(ctx context.Context, userID string, amount int64, source domain.TxSource, description string, metadata map[string]string) (*Effects, error) {
	return e.run(ctx, "spend", userID, func(u *unit) error {
		if amount <= 0 {
			return fmt.Errorf("%w: spend amount must be positive, got %d", domain.ErrInvalidTransaction, amount)
		}
		if description == "" {
			description = fmt.Sprintf("Spent %d points", amount)
		}
		return u.award(-amount, domain.TxSpent, source, domain.ActivityPointsSpent, description, metadata)
	})
}

// ExpirePoints removes amount (> 0) of aged points.
func (e *Engine) ExpirePoints(ctx context.Context, userID string, amount int64, description string) (*Effects, error) {
	return e.run(ctx, "expire", userID, func(u *unit) error {
		if amount <= 0 {
			return fmt.Errorf("%w: expire amount must be positive, got %d", domain.ErrInvalidTransaction, amount)
		}
		if description == "" {
			description = fmt.Sprintf("%d points expired", amount)
		}
		return u.award(-amount, domain.TxExpired, domain.SourceSystem, domain.ActivityPointsExpired, description, nil)
	})
}

// CompleteHabit awards the base habit points and evaluates habit metrics.
func (e *Engine) CompleteHabit(ctx context.Context, userID, habit string) (*Effects, error) {
	return e.run(ctx, "habit", userID, func(u *unit) error {
		name := strings.TrimSpace(habit)
		if name == "" {
			return fmt.Errorf("%w: habit name is required", domain.ErrInvalidOperation)
		}
		err := u.award(e.habitPoints, domain.TxEarned, domain.SourceHabit, domain.ActivityHabitCompleted,
			fmt.Sprintf("Completed habit: %s", name), map[string]string{"habit": name})
		if err != nil {
			return err
		}
		u.push(Event{Kind: EventHabitCompleted, Habit: name})
		return nil
	})
}

// DailyCheckIn records a check-in at at (zero means now). A second
// check-in on the same day changes nothing and writes nothing.
func (e *Engine) DailyCheckIn(ctx context.Context, userID string, at time.Time) (*Effects, error) {
	return e.run(ctx, "checkin", userID, func(u *unit) error {
		if at.IsZero() {
			at = u.now
		}
		res, err := e.streaks.CheckIn(u.progress.Streak, at)
		if err != nil {
			return err
		}
		if !res.Changed {
			return nil
		}

		u.progress.Streak = res.Streak
		streak := res.Streak.CurrentStreak
		u.log(domain.ActivityCheckIn, fmt.Sprintf("Checked in (%d-day streak)", streak), 0,
			map[string]string{"date": e.streaks.date(at), "streak": strconv.Itoa(streak)})

		if m := res.Milestone; m != nil {
			err := u.award(m.Bonus, domain.TxBonus, domain.SourceStreak, domain.ActivityStreakMilestone,
				fmt.Sprintf("%d-day streak milestone", m.Days),
				map[string]string{"milestone": strconv.Itoa(m.Days)})
			if err != nil {
				return err
			}
			u.effects.MilestonesReached = append(u.effects.MilestonesReached, m.Days)
		}
		u.push(Event{Kind: EventCheckIn})
		return nil
	})
}

// StartChallenge enrolls the user in a challenge.
func (e *Engine) StartChallenge(ctx context.Context, userID, challengeID string) (*Effects, error) {
	return e.run(ctx, "challenge_start", userID, func(u *unit) error {
		u.challengeID = challengeID
		_, err := e.challenges.Start(u, challengeID)
		return err
	})
}

// UpdateChallengeProgress sets absolute challenge progress.
func (e *Engine) UpdateChallengeProgress(ctx context.Context, userID, challengeID string, value int) (*Effects, error) {
	return e.run(ctx, "challenge_progress", userID, func(u *unit) error {
		u.challengeID = challengeID
		_, err := e.challenges.UpdateProgress(u, challengeID, value)
		return err
	})
}

// CompleteChallenge finishes a challenge explicitly.
func (e *Engine) CompleteChallenge(ctx context.Context, userID, challengeID string) (*Effects, error) {
	return e.run(ctx, "challenge_complete", userID, func(u *unit) error {
		u.challengeID = challengeID
		_, err := e.challenges.Complete(u, challengeID)
		return err
	})
}

// UnlockAchievement completes a manual achievement.
func (e *Engine) UnlockAchievement(ctx context.Context, userID, achievementID string) (*Effects, error) {
	return e.run(ctx, "unlock", userID, func(u *unit) error {
		_, err := e.achievements.Unlock(u, achievementID)
		return err
	})
}

// ClaimReward claims a granted reward and reports its state in
// Effects.Reward. Claiming again is not an error.
func (e *Engine) ClaimReward(ctx context.Context, userID, rewardID string) (*Effects, error) {
	return e.run(ctx, "claim", userID, func(u *unit) error {
		r, err := claimReward(u, rewardID)
		if err != nil {
			return err
		}
		u.effects.Reward = &r
		return nil
	})
}

// run executes one command under the user's lock and reports it to the
// observer.
func (e *Engine) run(ctx context.Context, command, userID string, fn func(u *unit) error) (*Effects, error) {
	start := time.Now()
	eff, err := e.apply(ctx, userID, fn)
	elapsed := time.Since(start)
	if err != nil {
		e.observer.CommandFailed(command, err, elapsed)
		return nil, err
	}
	e.observer.CommandApplied(command, eff, elapsed)
	return eff, nil
}

func (e *Engine) apply(ctx context.Context, userID string, fn func(u *unit) error) (*Effects, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidOperation)
	}

	unlock := e.locks.lock(userID)
	defer unlock()

	u, err := e.begin(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := fn(u); err != nil {
		return nil, err
	}
	if err := e.drain(u); err != nil {
		return nil, err
	}
	e.finish(u)

	if !u.dirty {
		return u.effects, nil
	}

	p := u.progress
	p.Version++
	p.UpdatedAt = u.now
	if err := e.store.Save(ctx, p, u.ledger.Pending()); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			log.Printf("[engine] version conflict saving user %s at version %d", userID, p.Version)
		} else {
			log.Printf("[engine] save user %s failed: %v", userID, err)
		}
		return nil, fmt.Errorf("%w: save progress for %s: %w", domain.ErrStorage, userID, err)
	}
	return u.effects, nil
}

// begin loads a private working copy of the user's committed state.
func (e *Engine) begin(ctx context.Context, userID string) (*unit, error) {
	now := e.clock.Now()
	p, l, err := e.load(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	return &unit{
		e:        e,
		progress: p,
		ledger:   l,
		now:      now,
		effects:  &Effects{UserID: userID},
		points:   p.TotalPoints,
	}, nil
}

// load reads one committed snapshot of the aggregate and its ledger and
// re-derives totals and level from the ledger. Every entry appended during
// the command is stamped with the same instant.
func (e *Engine) load(ctx context.Context, userID string, now time.Time) (*domain.UserProgress, *ledger.Ledger, error) {
	p, txs, err := e.store.Snapshot(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: load progress for %s: %w", domain.ErrStorage, userID, err)
	}

	l := ledger.New(userID, domain.ClockFunc(func() time.Time { return now }), txs)

	p.UserID = userID
	p.Balance = l.Balance()
	p.TotalPoints = l.Total()
	lvl := e.levels.LevelFor(p.TotalPoints)
	p.Level = lvl.Level
	p.LevelTitle = lvl.Title
	return p, l, nil
}

// drain processes queued events until none remain. Unlocks and
// completions are one-way, so the cascade always settles.
func (e *Engine) drain(u *unit) error {
	for len(u.queue) > 0 {
		ev := u.queue[0]
		u.queue = u.queue[1:]
		if _, err := e.achievements.Evaluate(u, ev); err != nil {
			return err
		}
		if err := e.challenges.Advance(u, ev); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) finish(u *unit) {
	p := u.progress
	eff := u.effects
	eff.NewTotal = p.TotalPoints
	eff.Balance = p.Balance
	eff.Level = p.Level
	if lc := eff.LevelChange; lc != nil && lc.From == lc.To {
		eff.LevelChange = nil
	}
	streak := p.Streak
	eff.Streak = &streak
	if u.challengeID != "" {
		if st := p.Challenge(u.challengeID); st != nil {
			c := *st
			eff.Challenge = &c
		}
	}
}

// ─── Queries ────────────────────────────────────────────────────────────────

// GetProgress returns the user's committed aggregate.
func (e *Engine) GetProgress(ctx context.Context, userID string) (*domain.UserProgress, error) {
	p, _, err := e.load(ctx, userID, e.clock.Now())
	return p, err
}

// GetLedger returns up to limit ledger entries newest first
// (limit <= 0 means all).
func (e *Engine) GetLedger(ctx context.Context, userID string, limit int) ([]domain.PointsTransaction, error) {
	_, l, err := e.load(ctx, userID, e.clock.Now())
	if err != nil {
		return nil, err
	}
	return slices.Collect(l.History(limit)), nil
}

// Achievements returns every achievement merged with the user's state.
func (e *Engine) Achievements(ctx context.Context, userID string) ([]domain.Achievement, error) {
	p, _, err := e.load(ctx, userID, e.clock.Now())
	if err != nil {
		return nil, err
	}
	return e.achievements.View(p), nil
}

// Challenges returns every challenge with the user's state, participant
// count and the top of its leaderboard.
func (e *Engine) Challenges(ctx context.Context, userID string) ([]domain.Challenge, error) {
	p, _, err := e.load(ctx, userID, e.clock.Now())
	if err != nil {
		return nil, err
	}
	views := e.challenges.View(p, e.clock.Now())
	for i := range views {
		board, n, err := e.store.ChallengeLeaderboard(ctx, views[i].ID, challengeLeaderboardSize)
		if err != nil {
			return nil, fmt.Errorf("%w: challenge leaderboard %s: %w", domain.ErrStorage, views[i].ID, err)
		}
		views[i].Participants = n
		views[i].Leaderboard = board
	}
	return views, nil
}

// ActivityLog returns up to limit activity entries newest first.
func (e *Engine) ActivityLog(ctx context.Context, userID string, limit int) ([]domain.ActivityLogEntry, error) {
	p, _, err := e.load(ctx, userID, e.clock.Now())
	if err != nil {
		return nil, err
	}
	return RecentActivity(p, limit), nil
}

// Leaderboard ranks users by total points.
func (e *Engine) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	board, err := e.store.Leaderboard(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: leaderboard: %w", domain.ErrStorage, err)
	}
	return board, nil
}

// ChallengeLeaderboard ranks a challenge's participants by progress.
func (e *Engine) ChallengeLeaderboard(ctx context.Context, challengeID string, limit int) ([]domain.LeaderboardEntry, int, error) {
	if _, ok := e.challenges.Lookup(challengeID); !ok {
		return nil, 0, fmt.Errorf("challenge %q: %w", challengeID, domain.ErrNotFound)
	}
	board, n, err := e.store.ChallengeLeaderboard(ctx, challengeID, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: challenge leaderboard %s: %w", domain.ErrStorage, challengeID, err)
	}
	return board, n, nil
}

// Summary is a compact progress card.
type Summary struct {
	UserID            string             `json:"user_id"`
	TotalPoints       int64              `json:"total_points"`
	Level             domain.Level       `json:"level"`
	NextLevel         *domain.Level      `json:"next_level,omitempty"`
	PointsToNext      int64              `json:"points_to_next"`
	ProgressPct       float64            `json:"progress_pct"`
	Streak            domain.StreakState `json:"streak"`
	NextMilestone     *domain.Milestone  `json:"next_milestone,omitempty"`
	UnlockedCount     int                `json:"unlocked_count"`
	TotalAchievements int                `json:"total_achievements"`
	UnclaimedRewards  int                `json:"unclaimed_rewards"`
}

// GetSummary returns the user's progress card.
func (e *Engine) GetSummary(ctx context.Context, userID string) (*Summary, error) {
	p, _, err := e.load(ctx, userID, e.clock.Now())
	if err != nil {
		return nil, err
	}
	now := e.clock.Now()
	lvl := e.levels.LevelFor(p.TotalPoints)
	s := &Summary{
		UserID:            userID,
		TotalPoints:       p.TotalPoints,
		Level:             lvl,
		PointsToNext:      e.levels.PointsToNext(p.TotalPoints),
		ProgressPct:       e.levels.ProgressPct(p.TotalPoints),
		Streak:            p.Streak,
		TotalAchievements: e.achievements.TotalCount(),
	}
	if next, ok := e.levels.NextLevel(lvl); ok {
		s.NextLevel = &next
	}
	if m, ok := e.streaks.NextMilestone(p.Streak); ok {
		s.NextMilestone = &m
	}
	for _, a := range p.Achievements {
		if a.Unlocked {
			s.UnlockedCount++
		}
	}
	for _, r := range p.Rewards {
		if !r.Claimed && !r.IsExpired(now) {
			s.UnclaimedRewards++
		}
	}
	return s, nil
}
