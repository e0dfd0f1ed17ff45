package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <path|checksum> <dest>",
		Short: "Export snapshot content into a directory",
		Long:  `Write a snapshot's content into dest without touching its original location or any stored metadata.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.mgr.Export(args[0], args[1])
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d file(s) to %s\n", n, args[1])
			return nil
		},
	}
}
