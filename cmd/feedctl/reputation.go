package main

import (
	"github.com/spf13/cobra"
)

var reputationCmd = &cobra.Command{
	Use:   "reputation",
	Short: "Inspect user reputation",
}

var reputationGetCmd = &cobra.Command{
	Use:   "get <user-id>...",
	Short: "Show the current score and bucket of users",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, id := range args {
			rep, err := client.Reputation(cmd.Context(), id)
			if err != nil {
				return err
			}
			if err := printReputation(rep); err != nil {
				return err
			}
		}
		return nil
	},
}

var reputationRefreshCmd = &cobra.Command{
	Use:   "refresh <user-id>",
	Short: "Drop the cached score and recompute it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rep, err := client.RefreshReputation(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printSuccess("Recomputed reputation for %s", args[0])
		return printReputation(rep)
	},
}

func init() {
	reputationCmd.AddCommand(reputationGetCmd)
	reputationCmd.AddCommand(reputationRefreshCmd)
}
