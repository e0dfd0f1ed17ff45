package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

// outputJSON writes v to the command's stdout as indented JSON.
func outputJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// shortSum truncates a checksum for display.
func shortSum(checksum string) string {
	if len(checksum) > 12 {
		return checksum[:12]
	}
	return checksum
}
