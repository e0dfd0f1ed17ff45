package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ghyeongl/freeze/engine"
)

func NewDiffCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <source> <target>",
		Short: "Line diff between two contents",
		Long:  `Compare two stored checksums, or a checksum against the live file ("current" with --path).`,
		Args:  cobra.ExactArgs(2),
		RunE:  makeDiffRunner(a),
	}

	cmd.Flags().String("path", "", "Live file path when a side is 'current'")
	return cmd
}

func makeDiffRunner(a *app) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("path")
		asJSON, _ := cmd.Flags().GetBool("json")

		src, err := diffSide(args[0], path)
		if err != nil {
			return err
		}
		dst, err := diffSide(args[1], path)
		if err != nil {
			return err
		}

		result, err := a.mgr.Compare(src, dst)
		if err != nil {
			return fmt.Errorf("diff: %w", err)
		}

		if asJSON {
			return outputJSON(cmd, result)
		}

		out := cmd.OutOrStdout()
		switch {
		case result.Identical:
			fmt.Fprintln(out, "contents are identical")
		case result.Binary:
			fmt.Fprintln(out, "binary contents differ")
		default:
			for _, op := range result.Ops {
				prefix := "  "
				switch op.Kind {
				case engine.DiffAdd:
					prefix = "+ "
				case engine.DiffRemove:
					prefix = "- "
				}
				fmt.Fprintf(out, "%s%s\n", prefix, op.Line)
			}
		}
		return nil
	}
}

// diffSide maps a CLI argument to a ContentSource. The literal "current"
// selects the live file named by --path.
func diffSide(side, path string) (engine.ContentSource, error) {
	if side == "current" {
		if path == "" {
			return engine.ContentSource{}, fmt.Errorf("--path required when comparing against current")
		}
		return engine.ContentSource{Path: path}, nil
	}
	return engine.ContentSource{Checksum: side}, nil
}
