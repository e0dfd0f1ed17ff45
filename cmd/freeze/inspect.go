package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func NewInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <path>",
		Short: "Show the snapshot history of a path",
		Long:  `List every snapshot of path, oldest first, with added/removed/modified counts versus the previous version.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")

			history, err := a.mgr.Inspect(args[0])
			if err != nil {
				return fmt.Errorf("inspect: %w", err)
			}

			if asJSON {
				return outputJSON(cmd, history)
			}

			out := cmd.OutOrStdout()
			for _, v := range history {
				snap := v.Snapshot
				fmt.Fprintf(out, "%4d  %s  %s  %8s  %d file(s)",
					snap.ID, shortSum(snap.Checksum),
					snap.CreatedAt.Format("2006-01-02 15:04:05"),
					humanize.Bytes(uint64(snap.Size)), snap.FileCount)
				if v.Added+v.Removed+v.Modified > 0 {
					fmt.Fprintf(out, "  (+%d -%d ~%d)", v.Added, v.Removed, v.Modified)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}
