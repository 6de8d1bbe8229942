package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tutu-network/rewards/internal/app/engagement"
	"github.com/tutu-network/rewards/internal/daemon"
)

func init() {
	catalogCmd.AddCommand(catalogValidateCmd)
	rootCmd.AddCommand(catalogCmd)
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the level, achievement and challenge catalog",
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Validate a catalog file (default: the configured catalog)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		} else {
			cfg, err := daemon.LoadConfig()
			if err != nil {
				return err
			}
			path = cfg.Engine.Catalog
		}

		c, err := engagement.LoadCatalog(path)
		if err != nil {
			return err
		}
		name := path
		if name == "" {
			name = "built-in catalog"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d levels, %d milestones, %d achievements, %d challenges)\n",
			name, len(c.Levels), len(c.Milestones), len(c.Achievements), len(c.Challenges))
		return nil
	},
}
