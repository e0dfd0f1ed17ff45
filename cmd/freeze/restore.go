package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewRestoreCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <path>",
		Short: "Restore a file or directory from a snapshot",
		Long:  `Restore path from a saved snapshot. Without --checksum the most recent snapshot is used; with it, the prefix may name a whole snapshot or a single file version inside the path's history.`,
		Args:  cobra.ExactArgs(1),
		RunE:  makeRestoreRunner(a),
	}

	cmd.Flags().StringP("checksum", "c", "", "Checksum prefix of the snapshot or file version")
	return cmd
}

func makeRestoreRunner(a *app) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		checksum, _ := cmd.Flags().GetString("checksum")

		n, err := a.mgr.Restore(args[0], checksum)
		if err != nil {
			return fmt.Errorf("restore: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "restored %d file(s) to %s\n", n, args[0])
		return nil
	}
}
