// Package domain holds the progression types shared by the engine, the
// stores and the HTTP facade. It has no infrastructure dependencies.
package domain

import (
	"math"
	"time"
)

// Unbounded is the MaxPoints of the last level in a table.
const Unbounded int64 = math.MaxInt64

// ─── Level Types ────────────────────────────────────────────────────────────

// Level is one row of the static level table.
type Level struct {
	Level     int         `json:"level" toml:"level"`
	Title     string      `json:"title" toml:"title"`
	MinPoints int64       `json:"min_points" toml:"min_points"`
	MaxPoints int64       `json:"max_points" toml:"max_points"`
	Rewards   []RewardDef `json:"rewards,omitempty" toml:"rewards"`
}

// Contains reports whether points fall inside the level's range.
func (l Level) Contains(points int64) bool {
	return points >= l.MinPoints && points <= l.MaxPoints
}

// LevelChange describes a level transition produced by one command.
// Crossed lists every level entered on the way up, in order.
type LevelChange struct {
	From    int     `json:"from"`
	To      int     `json:"to"`
	Title   string  `json:"title"`
	Crossed []Level `json:"crossed,omitempty"`
}

// ─── Achievement Types ──────────────────────────────────────────────────────

// Rarity grades achievements for display.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// Metric is a measurable quantity that threshold rules and challenges track.
type Metric string

const (
	MetricHabitsCompleted     Metric = "habits_completed"
	MetricDistinctHabits      Metric = "distinct_habits"
	MetricTotalPoints         Metric = "total_points"
	MetricCurrentStreak       Metric = "current_streak"
	MetricBestStreak          Metric = "best_streak"
	MetricCheckIns            Metric = "check_ins"
	MetricChallengesCompleted Metric = "challenges_completed"
	MetricLevel               Metric = "level"
)

// RuleKind selects how an achievement unlocks.
type RuleKind string

const (
	RuleThreshold RuleKind = "threshold"
	RuleManual    RuleKind = "manual"
)

// UnlockRule is either Threshold(metric, target) or Manual.
type UnlockRule struct {
	Kind   RuleKind `json:"kind" toml:"kind"`
	Metric Metric   `json:"metric,omitempty" toml:"metric"`
	Target int      `json:"target" toml:"target"`
}

// AchievementDef is a catalog entry.
type AchievementDef struct {
	ID          string     `json:"id" toml:"id"`
	Title       string     `json:"title" toml:"title"`
	Description string     `json:"description" toml:"description"`
	Category    string     `json:"category" toml:"category"`
	Icon        string     `json:"icon" toml:"icon"`
	Points      int64      `json:"points" toml:"points"`
	Rarity      Rarity     `json:"rarity" toml:"rarity"`
	Rule        UnlockRule `json:"rule" toml:"rule"`
}

// Goal is the progress value at which the achievement unlocks.
func (d AchievementDef) Goal() int {
	if d.Rule.Kind == RuleManual || d.Rule.Target <= 0 {
		return 1
	}
	return d.Rule.Target
}

// AchievementState is the per-user part of an achievement.
type AchievementState struct {
	ID          string    `json:"id"`
	Progress    int       `json:"progress"`
	MaxProgress int       `json:"max_progress"`
	Unlocked    bool      `json:"unlocked"`
	UnlockedAt  time.Time `json:"unlocked_at,omitzero"`
}

// Achievement merges a definition with a user's state for display.
type Achievement struct {
	AchievementDef
	Progress    int       `json:"progress"`
	MaxProgress int       `json:"max_progress"`
	Unlocked    bool      `json:"unlocked"`
	UnlockedAt  time.Time `json:"unlocked_at,omitzero"`
}

// ─── Streak Types ───────────────────────────────────────────────────────────

// StreakState tracks daily check-ins.
// Milestones only grow: a streak reset never clears them.
type StreakState struct {
	CurrentStreak   int       `json:"current_streak"`
	BestStreak      int       `json:"best_streak"`
	LastCompletedAt time.Time `json:"last_completed_at,omitzero"`
	WeeklyStreak    int       `json:"weekly_streak"`
	Milestones      []int     `json:"milestones"`
	RecentCheckIns  []string  `json:"recent_check_ins,omitempty"` // "2006-01-02", trailing week
}

// HasMilestone reports whether m was already recorded.
func (s StreakState) HasMilestone(m int) bool {
	for _, v := range s.Milestones {
		if v == m {
			return true
		}
	}
	return false
}

// Milestone is a configured streak length with its bonus.
type Milestone struct {
	Days  int   `json:"days" toml:"days"`
	Bonus int64 `json:"bonus" toml:"bonus"`
}

// ─── Challenge Types ────────────────────────────────────────────────────────

// ChallengeCategory is the cadence of a challenge.
type ChallengeCategory string

const (
	ChallengeDaily   ChallengeCategory = "daily"
	ChallengeWeekly  ChallengeCategory = "weekly"
	ChallengeMonthly ChallengeCategory = "monthly"
	ChallengeSpecial ChallengeCategory = "special"
)

// Difficulty grades a challenge.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ChallengeStatus is the lifecycle position of a challenge for one user.
type ChallengeStatus string

const (
	ChallengeScheduled ChallengeStatus = "scheduled"
	ChallengeActive    ChallengeStatus = "active"
	ChallengeCompleted ChallengeStatus = "completed"
	ChallengeExpired   ChallengeStatus = "expired"
)

// ChallengeDef is a time-boxed catalog goal. Metric is optional; when set
// the engine advances progress from matching events inside the window.
type ChallengeDef struct {
	ID          string            `json:"id" toml:"id"`
	Title       string            `json:"title" toml:"title"`
	Description string            `json:"description" toml:"description"`
	Category    ChallengeCategory `json:"category" toml:"category"`
	Difficulty  Difficulty        `json:"difficulty" toml:"difficulty"`
	Icon        string            `json:"icon" toml:"icon"`
	Points      int64             `json:"points" toml:"points"`
	StartDate   time.Time         `json:"start_date" toml:"start_date"`
	EndDate     time.Time         `json:"end_date" toml:"end_date"`
	MaxProgress int               `json:"max_progress" toml:"max_progress"`
	Metric      Metric            `json:"metric,omitempty" toml:"metric"`
}

// IsActive reports whether now falls inside [StartDate, EndDate].
func (d ChallengeDef) IsActive(now time.Time) bool {
	return !now.Before(d.StartDate) && !now.After(d.EndDate)
}

// ChallengeState is a user's progress on one challenge.
type ChallengeState struct {
	ID          string    `json:"id"`
	Progress    int       `json:"progress"`
	MaxProgress int       `json:"max_progress"`
	Started     bool      `json:"started"`
	StartedAt   time.Time `json:"started_at,omitzero"`
	Completed   bool      `json:"completed"`
	CompletedAt time.Time `json:"completed_at,omitzero"`
}

// Challenge merges a definition, a user's state and the shared standings.
type Challenge struct {
	ChallengeDef
	Status       ChallengeStatus    `json:"status"`
	Progress     int                `json:"progress"`
	Started      bool               `json:"started"`
	Completed    bool               `json:"completed"`
	CompletedAt  time.Time          `json:"completed_at,omitzero"`
	Participants int                `json:"participants"`
	Leaderboard  []LeaderboardEntry `json:"leaderboard,omitempty"`
}

// LeaderboardEntry is one row of a sort-by-score ranking.
type LeaderboardEntry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"user_id"`
	Score  int64  `json:"score"`
	Level  int    `json:"level,omitempty"`
}

// ─── Reward Types ───────────────────────────────────────────────────────────

// RewardType says what claiming a reward yields.
type RewardType string

const (
	RewardPoints  RewardType = "points"
	RewardBadge   RewardType = "badge"
	RewardFeature RewardType = "feature"
	RewardTitle   RewardType = "title"
)

// RewardDef is a reward attached to a level in the catalog.
type RewardDef struct {
	ID          string     `json:"id" toml:"id"`
	Title       string     `json:"title" toml:"title"`
	Description string     `json:"description" toml:"description"`
	Type        RewardType `json:"type" toml:"type"`
	Value       int64      `json:"value,omitempty" toml:"value"`
	ExpiresDays int        `json:"expires_days,omitempty" toml:"expires_days"`
}

// RewardState is a reward granted to a user.
type RewardState struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Type        RewardType `json:"type"`
	Value       int64      `json:"value,omitempty"`
	Level       int        `json:"level"`
	GrantedAt   time.Time  `json:"granted_at"`
	Claimed     bool       `json:"claimed"`
	ClaimedAt   time.Time  `json:"claimed_at,omitzero"`
	ExpiresAt   time.Time  `json:"expires_at,omitzero"`
}

// IsExpired reports whether the reward can no longer be claimed.
func (r RewardState) IsExpired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// ─── Activity Log Types ─────────────────────────────────────────────────────

// ActivityType categorizes an activity-log entry.
type ActivityType string

const (
	ActivityPointsEarned       ActivityType = "points_earned"
	ActivityPointsSpent        ActivityType = "points_spent"
	ActivityPointsExpired      ActivityType = "points_expired"
	ActivityHabitCompleted     ActivityType = "habit_completed"
	ActivityCheckIn            ActivityType = "check_in"
	ActivityStreakMilestone    ActivityType = "streak_milestone"
	ActivityLevelUp            ActivityType = "level_up"
	ActivityLevelDown          ActivityType = "level_down"
	ActivityAchievement        ActivityType = "achievement_unlocked"
	ActivityChallengeStarted   ActivityType = "challenge_started"
	ActivityChallengeCompleted ActivityType = "challenge_completed"
	ActivityRewardGranted      ActivityType = "reward_granted"
	ActivityRewardClaimed      ActivityType = "reward_claimed"
)

// ActivityLogEntry is one append-only log line.
type ActivityLogEntry struct {
	ID          string            `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	Type        ActivityType      `json:"type"`
	Description string            `json:"description"`
	Points      int64             `json:"points"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ─── Aggregate ──────────────────────────────────────────────────────────────

// UserProgress is the per-user aggregate. TotalPoints, Balance and Level are
// derived from the ledger on every command and are never set by callers.
type UserProgress struct {
	UserID       string             `json:"user_id"`
	TotalPoints  int64              `json:"total_points"`
	Balance      int64              `json:"balance"`
	Level        int                `json:"level"`
	LevelTitle   string             `json:"level_title"`
	Achievements []AchievementState `json:"achievements"`
	Rewards      []RewardState      `json:"rewards"`
	Challenges   []ChallengeState   `json:"challenges"`
	Streak       StreakState        `json:"streak"`
	ActivityLog  []ActivityLogEntry `json:"activity_log"`
	Version      int64              `json:"version"`
	UpdatedAt    time.Time          `json:"updated_at,omitzero"`
}

// NewUserProgress returns the empty aggregate for a user who has never
// issued a command.
func NewUserProgress(userID string) *UserProgress {
	return &UserProgress{
		UserID: userID,
		Level:  1,
	}
}

// Achievement returns the state for id, or nil.
func (p *UserProgress) Achievement(id string) *AchievementState {
	for i := range p.Achievements {
		if p.Achievements[i].ID == id {
			return &p.Achievements[i]
		}
	}
	return nil
}

// Challenge returns the state for id, or nil.
func (p *UserProgress) Challenge(id string) *ChallengeState {
	for i := range p.Challenges {
		if p.Challenges[i].ID == id {
			return &p.Challenges[i]
		}
	}
	return nil
}

// Reward returns the state for id, or nil.
func (p *UserProgress) Reward(id string) *RewardState {
	for i := range p.Rewards {
		if p.Rewards[i].ID == id {
			return &p.Rewards[i]
		}
	}
	return nil
}

// Clone returns a deep copy so a command can mutate it without touching
// the committed snapshot.
func (p *UserProgress) Clone() *UserProgress {
	c := *p
	c.Achievements = append([]AchievementState(nil), p.Achievements...)
	c.Rewards = append([]RewardState(nil), p.Rewards...)
	c.Challenges = append([]ChallengeState(nil), p.Challenges...)
	c.Streak.Milestones = append([]int(nil), p.Streak.Milestones...)
	c.Streak.RecentCheckIns = append([]string(nil), p.Streak.RecentCheckIns...)
	c.ActivityLog = make([]ActivityLogEntry, len(p.ActivityLog))
	for i, e := range p.ActivityLog {
		e.Metadata = cloneMetadata(e.Metadata)
		c.ActivityLog[i] = e
	}
	return &c
}

func cloneMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
