package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tutu-network/rewards/internal/daemon"
)

func init() {
	rootCmd.AddCommand(unlockCmd, claimCmd, achievementsCmd)
}

var unlockCmd = &cobra.Command{
	Use:   "unlock <user> <achievement>",
	Short: "Unlock an achievement by hand",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(func(d *daemon.Daemon) error {
			eff, err := d.Engine.UnlockAchievement(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			printEffects(cmd.OutOrStdout(), eff)
			return nil
		})
	},
}

var claimCmd = &cobra.Command{
	Use:   "claim <user> <reward>",
	Short: "Claim a granted level reward",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(func(d *daemon.Daemon) error {
			eff, err := d.Engine.ClaimReward(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if r := eff.Reward; r != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Claimed %s (%s)\n", r.Title, r.Type)
			}
			printEffects(cmd.OutOrStdout(), eff)
			return nil
		})
	},
}

var achievementsCmd = &cobra.Command{
	Use:   "achievements <user>",
	Short: "List achievements with the user's progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(func(d *daemon.Daemon) error {
			list, err := d.Engine.Achievements(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tRARITY\tPOINTS\tPROGRESS\tUNLOCKED")
			for _, a := range list {
				unlocked := "-"
				if a.Unlocked {
					unlocked = a.UnlockedAt.Format("2006-01-02")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d/%d\t%s\n",
					a.ID, a.Title, a.Rarity, a.Points, a.Progress, a.MaxProgress, unlocked)
			}
			return w.Flush()
		})
	},
}
