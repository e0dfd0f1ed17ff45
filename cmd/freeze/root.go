package main

import (
	"github.com/spf13/cobra"
)

func NewRootCmd(version string, a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "freeze",
		Short:         "Point-in-time snapshots for files and directories",
		Long:          `Save immutable, content-addressed snapshots of files and directories and restore, compare or export them later.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output in JSON format")

	if a != nil {
		addSubcommands(rootCmd, a)
	}

	return rootCmd
}

func addSubcommands(root *cobra.Command, a *app) {
	root.AddCommand(
		NewSaveCmd(a),
		NewRestoreCmd(a),
		NewListCmd(a),
		NewListDirCmd(a),
		NewSearchCmd(a),
		NewCheckCmd(a),
		NewViewCmd(a),
		NewDiffCmd(a),
		NewInspectCmd(a),
		NewExportCmd(a),
		NewClearCmd(a),
		NewExclusionCmd(a),
		NewStatsCmd(a),
		NewWatchCmd(a),
		NewServeCmd(a),
		NewMCPCmd(a),
	)
}
