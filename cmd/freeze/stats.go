package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func NewStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show store statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")

			stats, err := a.mgr.GetStats()
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}

			if asJSON {
				return outputJSON(cmd, stats)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "snapshots: %d (%d root(s))\n", stats.Snapshots, stats.Roots)
			fmt.Fprintf(out, "tracked size: %s\n", humanize.Bytes(uint64(stats.TotalSize)))
			fmt.Fprintf(out, "stored blobs: %d\n", stats.Blobs)
			if len(stats.RecentErrors) > 0 {
				fmt.Fprintln(out, "recent errors:")
				for _, e := range stats.RecentErrors {
					fmt.Fprintf(out, "  %s [%s] %s %s\n", e.Time.Format("15:04:05"), e.Comp, e.Message, e.Error)
				}
			}
			return nil
		},
	}
}
