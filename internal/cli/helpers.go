package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/tutu-network/rewards/internal/app/engagement"
	"github.com/tutu-network/rewards/internal/daemon"
)

// withDaemon opens the configured store and engine for one command.
func withDaemon(fn func(d *daemon.Daemon) error) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()
	return fn(d)
}

// parseMeta turns key=value pairs into ledger metadata.
func parseMeta(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid metadata %q, want key=value", p)
		}
		meta[k] = v
	}
	return meta, nil
}

// printEffects renders what a command changed.
func printEffects(w io.Writer, eff *engagement.Effects) {
	for _, tx := range eff.Transactions {
		fmt.Fprintf(w, "  %+d %s/%s  %s\n", tx.Amount, tx.Type, tx.Source, tx.Description)
	}
	if lc := eff.LevelChange; lc != nil {
		if eff.LeveledUp() {
			fmt.Fprintf(w, "Level up: %d -> %d (%s)\n", lc.From, lc.To, lc.Title)
		} else {
			fmt.Fprintf(w, "Level down: %d -> %d (%s)\n", lc.From, lc.To, lc.Title)
		}
	}
	if len(eff.AchievementsUnlocked) > 0 {
		fmt.Fprintf(w, "Achievements unlocked: %s\n", strings.Join(eff.AchievementsUnlocked, ", "))
	}
	if len(eff.ChallengesCompleted) > 0 {
		fmt.Fprintf(w, "Challenges completed: %s\n", strings.Join(eff.ChallengesCompleted, ", "))
	}
	for _, m := range eff.MilestonesReached {
		fmt.Fprintf(w, "Streak milestone: %d days\n", m)
	}
	if len(eff.RewardsGranted) > 0 {
		fmt.Fprintf(w, "Rewards granted: %s\n", strings.Join(eff.RewardsGranted, ", "))
	}
	fmt.Fprintf(w, "Total: %d points (balance %d), level %d\n", eff.NewTotal, eff.Balance, eff.Level)
}
