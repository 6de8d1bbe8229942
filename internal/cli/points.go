package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tutu-network/rewards/internal/app/engagement"
	"github.com/tutu-network/rewards/internal/daemon"
	"github.com/tutu-network/rewards/internal/domain"
)

func init() {
	awardCmd.Flags().StringVar(&awardSource, "source", string(domain.SourceSystem), "Ledger source (habit, streak, challenge, achievement, reward, system)")
	spendCmd.Flags().StringVar(&spendSource, "source", string(domain.SourceReward), "Ledger source")
	for _, c := range []*cobra.Command{awardCmd, spendCmd, expireCmd} {
		c.Flags().StringVar(&pointsDesc, "desc", "", "Ledger description")
	}
	for _, c := range []*cobra.Command{awardCmd, spendCmd} {
		c.Flags().StringSliceVar(&pointsMeta, "meta", nil, "Metadata as key=value (repeatable)")
	}

	rootCmd.AddCommand(awardCmd, spendCmd, expireCmd)
}

var (
	awardSource  string
	spendSource  string
	pointsDesc   string
	pointsMeta   []string
)

var awardCmd = &cobra.Command{
	Use:   "award <user> <amount>",
	Short: "Award points to a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPoints(cmd, args, "award")
	},
}

var spendCmd = &cobra.Command{
	Use:   "spend <user> <amount>",
	Short: "Spend points from a user's balance",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPoints(cmd, args, "spend")
	},
}

var expireCmd = &cobra.Command{
	Use:   "expire <user> <amount>",
	Short: "Expire points from a user's balance",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPoints(cmd, args, "expire")
	},
}

func runPoints(cmd *cobra.Command, args []string, op string) error {
	userID := args[0]
	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q", args[1])
	}
	meta, err := parseMeta(pointsMeta)
	if err != nil {
		return err
	}

	return withDaemon(func(d *daemon.Daemon) error {
		ctx := cmd.Context()
		var eff *engagement.Effects
		switch op {
		case "award":
			eff, err = d.Engine.AwardPoints(ctx, userID, amount, domain.TxSource(awardSource), pointsDesc, meta)
		case "spend":
			eff, err = d.Engine.SpendPoints(ctx, userID, amount, domain.TxSource(spendSource), pointsDesc, meta)
		default:
			eff, err = d.Engine.ExpirePoints(ctx, userID, amount, pointsDesc)
		}
		if err != nil {
			return err
		}
		printEffects(cmd.OutOrStdout(), eff)
		return nil
	})
}
