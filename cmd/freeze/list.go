package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ghyeongl/freeze/engine"
)

// listPageSize is the number of snapshots shown per page.
const listPageSize = 10

func NewListCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all snapshots",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snaps, err := a.mgr.List()
			if err != nil {
				return fmt.Errorf("list: %w", err)
			}
			return renderSnapshots(cmd, snaps)
		},
	}

	cmd.Flags().IntP("page", "p", 1, "Page number")
	return cmd
}

func NewListDirCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list-dir [dir]",
		Aliases: []string{"cls"},
		Short:   "List snapshots under a directory (default current)",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			snaps, err := a.mgr.ListUnder(dir)
			if err != nil {
				return fmt.Errorf("list: %w", err)
			}
			return renderSnapshots(cmd, snaps)
		},
	}

	cmd.Flags().IntP("page", "p", 1, "Page number")
	return cmd
}

// renderSnapshots prints one page of a snapshot listing.
func renderSnapshots(cmd *cobra.Command, snaps []engine.Snapshot) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	page, _ := cmd.Flags().GetInt("page")
	if page < 1 {
		page = 1
	}

	total := len(snaps)
	pages := (total + listPageSize - 1) / listPageSize
	if pages == 0 {
		pages = 1
	}
	start := (page - 1) * listPageSize
	if start > total {
		start = total
	}
	end := start + listPageSize
	if end > total {
		end = total
	}
	snaps = snaps[start:end]

	if asJSON {
		return outputJSON(cmd, snaps)
	}

	if total == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no snapshots")
		return nil
	}
	for _, snap := range snaps {
		fmt.Fprintf(cmd.OutOrStdout(), "%4d  %s  %-4s  %8s  %4d file(s)  %s\n",
			snap.ID,
			shortSum(snap.Checksum),
			snap.Kind,
			humanize.Bytes(uint64(snap.Size)),
			snap.FileCount,
			snap.Root,
		)
	}
	if pages > 1 {
		fmt.Fprintf(cmd.OutOrStdout(), "page %d/%d (%d total)\n", page, pages, total)
	}
	return nil
}
