package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tutu-network/rewards/internal/daemon"
)

func init() {
	checkinCmd.Flags().StringVar(&checkinAt, "at", "", "Check-in time (RFC 3339 or YYYY-MM-DD, default now)")
	rootCmd.AddCommand(habitCmd, checkinCmd)
}

var checkinAt string

var habitCmd = &cobra.Command{
	Use:   "habit <user> <name>",
	Short: "Record a completed habit",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(func(d *daemon.Daemon) error {
			eff, err := d.Engine.CompleteHabit(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			printEffects(cmd.OutOrStdout(), eff)
			return nil
		})
	},
}

var checkinCmd = &cobra.Command{
	Use:   "checkin <user>",
	Short: "Record a daily check-in",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(func(d *daemon.Daemon) error {
			loc, err := d.Config.Location()
			if err != nil {
				return err
			}
			at, err := parseCheckInTime(checkinAt, loc)
			if err != nil {
				return err
			}
			eff, err := d.Engine.DailyCheckIn(cmd.Context(), args[0], at)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if eff.Streak != nil {
				fmt.Fprintf(out, "Streak: %d days (best %d)\n", eff.Streak.CurrentStreak, eff.Streak.BestStreak)
			}
			printEffects(out, eff)
			return nil
		})
	},
}

// parseCheckInTime accepts RFC 3339 or a bare date. A bare date means
// noon in loc so it never straddles a day boundary.
func parseCheckInTime(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Now(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	day, err := time.ParseInLocation(time.DateOnly, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at %q, want RFC 3339 or YYYY-MM-DD", s)
	}
	return day.Add(12 * time.Hour), nil
}
