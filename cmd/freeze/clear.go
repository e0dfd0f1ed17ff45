package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewClearCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear [dir]",
		Short: "Delete snapshots and their unreferenced content",
		Long:  `Delete snapshots rooted at or beneath dir (default current directory), or every snapshot with --all. Content blobs still referenced by surviving snapshots are kept.`,
		Args:  cobra.MaximumNArgs(1),
		RunE:  makeClearRunner(a),
	}

	cmd.Flags().Bool("all", false, "Delete every snapshot")
	return cmd
}

func makeClearRunner(a *app) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}

		stats, err := a.mgr.Clear(dir, all)
		if err != nil {
			return fmt.Errorf("clear: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "cleared %d snapshot(s), removed %d blob(s)\n", stats.Snapshots, stats.Blobs)
		return nil
	}
}
