package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func NewViewCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "view <path|checksum>",
		Short: "View a snapshot's contents",
		Long:  `Show the entry listing of a snapshot selected by path (latest) or checksum prefix. Single-file snapshots include a content preview.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")

			view, err := a.mgr.View(args[0])
			if err != nil {
				return fmt.Errorf("view: %w", err)
			}

			if asJSON {
				return outputJSON(cmd, view)
			}

			out := cmd.OutOrStdout()
			snap := view.Snapshot
			fmt.Fprintf(out, "snapshot %d  %s  %s  %s\n", snap.ID, shortSum(snap.Checksum), snap.Kind, snap.Root)
			for _, e := range view.Entries {
				if e.IsDir() {
					fmt.Fprintf(out, "  %-12s  %8s  %s/\n", "", "", e.RelPath)
					continue
				}
				fmt.Fprintf(out, "  %-12s  %8s  %s\n", shortSum(e.Checksum), humanize.Bytes(uint64(e.Size)), e.RelPath)
			}
			if view.Binary {
				fmt.Fprintln(out, "(binary content)")
			}
			if len(view.Content) > 0 {
				fmt.Fprintln(out, "---")
				out.Write(view.Content) //nolint:errcheck
				if view.Truncated {
					fmt.Fprintln(out, "\n(truncated)")
				}
			}
			return nil
		},
	}
}
