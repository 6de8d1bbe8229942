// Package metrics provides Prometheus metrics for the rewards engine.
// Counters follow the points ledger; histograms time every command.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tutu-network/rewards/internal/app/engagement"
	"github.com/tutu-network/rewards/internal/domain"
)

// ─── Points ─────────────────────────────────────────────────────────────────

// PointsAwarded tracks credited points by ledger source.
var PointsAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rewards",
	Name:      "points_awarded_total",
	Help:      "Total points credited (earned and bonus).",
}, []string{"source"})

// PointsSpent tracks debited points by transaction type (spent, expired).
var PointsSpent = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rewards",
	Name:      "points_spent_total",
	Help:      "Total points debited.",
}, []string{"type"})

// ─── Progression ────────────────────────────────────────────────────────────

// LevelUps tracks levels gained. A jump across three levels counts three.
var LevelUps = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "rewards",
	Name:      "level_ups_total",
	Help:      "Total levels gained across all users.",
})

// AchievementsUnlocked tracks unlocks per achievement.
var AchievementsUnlocked = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rewards",
	Name:      "achievements_unlocked_total",
	Help:      "Total achievement unlocks.",
}, []string{"achievement"})

// ChallengesCompleted tracks challenge completions.
var ChallengesCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rewards",
	Name:      "challenges_completed_total",
	Help:      "Total challenge completions.",
}, []string{"challenge"})

// StreakMilestones tracks streak milestones reached, by length in days.
var StreakMilestones = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rewards",
	Name:      "streak_milestones_total",
	Help:      "Total streak milestones reached.",
}, []string{"days"})

// RewardsClaimed tracks level rewards claimed.
var RewardsClaimed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "rewards",
	Name:      "rewards_claimed_total",
	Help:      "Total level rewards claimed.",
})

// ─── Commands ───────────────────────────────────────────────────────────────

// CommandDuration tracks engine command latency, storage included.
var CommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "rewards",
	Name:      "command_duration_seconds",
	Help:      "Engine command duration in seconds.",
	Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
}, []string{"command"})

// CommandErrors tracks rejected commands by error code.
var CommandErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rewards",
	Name:      "command_errors_total",
	Help:      "Total failed engine commands.",
}, []string{"command", "code"})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "rewards",
	Name:      "health_check_status",
	Help:      "Health check result per component (1=healthy, 0=unhealthy).",
}, []string{"check"})

// ─── Recorder ───────────────────────────────────────────────────────────────

// Recorder feeds engine outcomes into the collectors above.
type Recorder struct{}

// NewRecorder returns a Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

var _ engagement.Observer = (*Recorder)(nil)

// CommandApplied records the effects of a successful command.
func (r *Recorder) CommandApplied(command string, eff *engagement.Effects, elapsed time.Duration) {
	CommandDuration.WithLabelValues(command).Observe(elapsed.Seconds())
	if eff == nil {
		return
	}

	for _, tx := range eff.Transactions {
		switch {
		case tx.Amount > 0:
			PointsAwarded.WithLabelValues(string(tx.Source)).Add(float64(tx.Amount))
		case tx.Amount < 0:
			PointsSpent.WithLabelValues(string(tx.Type)).Add(float64(-tx.Amount))
		}
	}
	if eff.LeveledUp() {
		LevelUps.Add(float64(eff.LevelChange.To - eff.LevelChange.From))
	}
	for _, id := range eff.AchievementsUnlocked {
		AchievementsUnlocked.WithLabelValues(id).Inc()
	}
	for _, id := range eff.ChallengesCompleted {
		ChallengesCompleted.WithLabelValues(id).Inc()
	}
	for _, days := range eff.MilestonesReached {
		StreakMilestones.WithLabelValues(strconv.Itoa(days)).Inc()
	}
	for _, a := range eff.Activity {
		if a.Type == domain.ActivityRewardClaimed {
			RewardsClaimed.Inc()
		}
	}
}

// CommandFailed records a rejected command.
func (r *Recorder) CommandFailed(command string, err error, elapsed time.Duration) {
	CommandDuration.WithLabelValues(command).Observe(elapsed.Seconds())
	CommandErrors.WithLabelValues(command, domain.ErrorCode(err)).Inc()
}
