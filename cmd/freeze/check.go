package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check <path>",
		Short: "Check whether a path changed since its last snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")

			result, err := a.mgr.Check(args[0])
			if err != nil {
				return fmt.Errorf("check: %w", err)
			}

			if asJSON {
				return outputJSON(cmd, result)
			}

			out := cmd.OutOrStdout()
			if !result.Changed {
				fmt.Fprintf(out, "%s matches snapshot %d (%s)\n", args[0], result.SnapshotID, shortSum(result.SnapshotChecksum))
				return nil
			}
			fmt.Fprintf(out, "%s differs from snapshot %d\n", args[0], result.SnapshotID)
			for _, p := range result.Added {
				fmt.Fprintf(out, "  A %s\n", p)
			}
			for _, p := range result.Removed {
				fmt.Fprintf(out, "  D %s\n", p)
			}
			for _, p := range result.Modified {
				fmt.Fprintf(out, "  M %s\n", p)
			}
			return nil
		},
	}
}
