package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func NewSaveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "save <path>",
		Short: "Save a snapshot of a file or directory",
		Long:  `Save a point-in-time snapshot. File content goes into the content store deduplicated by checksum; unchanged files cost no extra space.`,
		Args:  cobra.ExactArgs(1),
		RunE:  makeSaveRunner(a),
	}
}

func makeSaveRunner(a *app) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		snap, err := a.mgr.Save(args[0])
		if err != nil {
			return fmt.Errorf("save: %w", err)
		}

		if asJSON {
			return outputJSON(cmd, snap)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "saved snapshot %d of %s\n", snap.ID, snap.Root)
		fmt.Fprintf(cmd.OutOrStdout(), "  %d file(s), %s, checksum %s\n",
			snap.FileCount, humanize.Bytes(uint64(snap.Size)), shortSum(snap.Checksum))
		return nil
	}
}
