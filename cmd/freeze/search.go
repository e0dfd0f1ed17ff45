package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewSearchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "search <pattern>",
		Short: "Search snapshots",
		Long:  `Search snapshot root paths by substring and entry paths by substring or glob.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")

			results, err := a.mgr.Search(args[0])
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			if asJSON {
				return outputJSON(cmd, results)
			}

			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no matches")
				return nil
			}
			for _, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%4d  %s  %s\n", r.Snapshot.ID, shortSum(r.Snapshot.Checksum), r.Snapshot.Root)
				for _, p := range r.MatchedPaths {
					fmt.Fprintf(cmd.OutOrStdout(), "        %s\n", p)
				}
			}
			return nil
		},
	}
}
