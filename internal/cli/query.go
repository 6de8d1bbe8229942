package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tutu-network/rewards/internal/app/engagement"
	"github.com/tutu-network/rewards/internal/daemon"
)

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum entries, newest first")
	activityCmd.Flags().IntVar(&activityLimit, "limit", 20, "Maximum entries, newest first")
	leaderboardCmd.Flags().IntVar(&boardLimit, "limit", 10, "Maximum rows")
	leaderboardCmd.Flags().StringVar(&boardChallenge, "challenge", "", "Rank a challenge's participants instead of total points")
	rootCmd.AddCommand(progressCmd, historyCmd, activityCmd, challengesCmd, leaderboardCmd)
}

var (
	historyLimit   int
	activityLimit  int
	boardLimit     int
	boardChallenge string
)

const barWidth = 30

var progressCmd = &cobra.Command{
	Use:   "progress <user>",
	Short: "Show a user's level, streak and rewards",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(func(d *daemon.Daemon) error {
			s, err := d.Engine.GetSummary(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), s)
			return nil
		})
	},
}

func printSummary(w io.Writer, s *engagement.Summary) {
	fmt.Fprintf(w, "User:     %s\n", s.UserID)
	fmt.Fprintf(w, "Level:    %d %s\n", s.Level.Level, s.Level.Title)
	fmt.Fprintf(w, "Points:   %d\n", s.TotalPoints)
	if s.NextLevel != nil {
		fmt.Fprintf(w, "          %s %.0f%% (%d to %s)\n",
			renderBar(s.ProgressPct), s.ProgressPct, s.PointsToNext, s.NextLevel.Title)
	} else {
		fmt.Fprintf(w, "          %s max level\n", renderBar(100))
	}
	fmt.Fprintf(w, "Streak:   %d days (best %d)\n", s.Streak.CurrentStreak, s.Streak.BestStreak)
	if s.NextMilestone != nil {
		fmt.Fprintf(w, "          next milestone at %d days (+%d)\n", s.NextMilestone.Days, s.NextMilestone.Bonus)
	}
	fmt.Fprintf(w, "Unlocked: %d/%d achievements\n", s.UnlockedCount, s.TotalAchievements)
	fmt.Fprintf(w, "Rewards:  %d unclaimed\n", s.UnclaimedRewards)
}

// renderBar draws [=========>..........] for pct in [0,100].
func renderBar(pct float64) string {
	pct = max(0, min(pct, 100))
	filled := int(pct / 100 * float64(barWidth))
	var b strings.Builder
	b.WriteByte('[')
	switch {
	case filled >= barWidth:
		b.WriteString(strings.Repeat("=", barWidth))
	case filled > 0:
		b.WriteString(strings.Repeat("=", filled-1))
		b.WriteByte('>')
		b.WriteString(strings.Repeat(".", barWidth-filled))
	default:
		b.WriteString(strings.Repeat(".", barWidth))
	}
	b.WriteByte(']')
	return b.String()
}

var historyCmd = &cobra.Command{
	Use:   "history <user>",
	Short: "Show the points ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(func(d *daemon.Daemon) error {
			txs, err := d.Engine.GetLedger(cmd.Context(), args[0], historyLimit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tAMOUNT\tTYPE\tSOURCE\tDESCRIPTION")
			for _, tx := range txs {
				fmt.Fprintf(w, "%s\t%+d\t%s\t%s\t%s\n",
					tx.Timestamp.Format("2006-01-02 15:04"), tx.Amount, tx.Type, tx.Source, tx.Description)
			}
			return w.Flush()
		})
	},
}

var activityCmd = &cobra.Command{
	Use:   "activity <user>",
	Short: "Show the activity log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(func(d *daemon.Daemon) error {
			entries, err := d.Engine.ActivityLog(cmd.Context(), args[0], activityLimit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tTYPE\tPOINTS\tDESCRIPTION")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
					e.Timestamp.Format("2006-01-02 15:04"), e.Type, e.Points, e.Description)
			}
			return w.Flush()
		})
	},
}

var challengesCmd = &cobra.Command{
	Use:   "challenges <user>",
	Short: "List challenges with the user's progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(func(d *daemon.Daemon) error {
			list, err := d.Engine.Challenges(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tPROGRESS\tPOINTS\tPARTICIPANTS")
			for _, c := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%d\t%d\n",
					c.ID, c.Title, c.Status, c.Progress, c.MaxProgress, c.Points, c.Participants)
			}
			return w.Flush()
		})
	},
}

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Rank users by total points",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(func(d *daemon.Daemon) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			if boardChallenge != "" {
				rows, participants, err := d.Engine.ChallengeLeaderboard(cmd.Context(), boardChallenge, boardLimit)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d participants\n", boardChallenge, participants)
				fmt.Fprintln(w, "RANK\tUSER\tPROGRESS")
				for _, r := range rows {
					fmt.Fprintf(w, "%d\t%s\t%d\n", r.Rank, r.UserID, r.Score)
				}
				return w.Flush()
			}

			rows, err := d.Engine.Leaderboard(cmd.Context(), boardLimit)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "RANK\tUSER\tPOINTS\tLEVEL")
			for _, r := range rows {
				fmt.Fprintf(w, "%d\t%s\t%d\t%d\n", r.Rank, r.UserID, r.Score, r.Level)
			}
			return w.Flush()
		})
	},
}
