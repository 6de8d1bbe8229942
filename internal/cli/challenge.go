package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tutu-network/rewards/internal/daemon"
)

func init() {
	challengeCmd.AddCommand(challengeStartCmd, challengeProgressCmd, challengeCompleteCmd)
	rootCmd.AddCommand(challengeCmd)
}

var challengeCmd = &cobra.Command{
	Use:   "challenge",
	Short: "Join and advance time-boxed challenges",
}

var challengeStartCmd = &cobra.Command{
	Use:   "start <user> <challenge>",
	Short: "Join an active challenge",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(func(d *daemon.Daemon) error {
			eff, err := d.Engine.StartChallenge(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Started %s\n", args[1])
			printEffects(cmd.OutOrStdout(), eff)
			return nil
		})
	},
}

var challengeProgressCmd = &cobra.Command{
	Use:   "progress <user> <challenge> <value>",
	Short: "Set progress on a started challenge",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid progress value %q", args[2])
		}
		return withDaemon(func(d *daemon.Daemon) error {
			eff, err := d.Engine.UpdateChallengeProgress(cmd.Context(), args[0], args[1], value)
			if err != nil {
				return err
			}
			if c := eff.Challenge; c != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", c.ID, c.Progress)
			}
			printEffects(cmd.OutOrStdout(), eff)
			return nil
		})
	},
}

var challengeCompleteCmd = &cobra.Command{
	Use:   "complete <user> <challenge>",
	Short: "Complete a started challenge",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(func(d *daemon.Daemon) error {
			eff, err := d.Engine.CompleteChallenge(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			printEffects(cmd.OutOrStdout(), eff)
			return nil
		})
	},
}
