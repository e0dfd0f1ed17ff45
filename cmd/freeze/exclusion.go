package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ghyeongl/freeze/engine"
)

func NewExclusionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "exclusion",
		Aliases: []string{"exclude"},
		Short:   "Manage exclusion rules",
		Long:    `Exclusion rules filter paths out of every save and restore. Types: glob (default), extension, exact.`,
	}

	cmd.AddCommand(
		newExclusionAddCmd(a),
		newExclusionRemoveCmd(a),
		newExclusionListCmd(a),
	)
	return cmd
}

func newExclusionAddCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <pattern>",
		Short: "Add an exclusion rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ruleType, _ := cmd.Flags().GetString("type")
			if !engine.ValidRuleType(ruleType) {
				return fmt.Errorf("invalid rule type: %s", ruleType)
			}
			if err := a.mgr.ExclusionAdd(args[0], ruleType); err != nil {
				return fmt.Errorf("add exclusion: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exclusion added: %s (%s)\n", args[0], ruleType)
			return nil
		},
	}

	cmd.Flags().StringP("type", "t", engine.RuleGlob, "Rule type (glob|extension|exact)")
	return cmd
}

func newExclusionRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <pattern>",
		Aliases: []string{"rm"},
		Short:   "Remove an exclusion rule",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := a.mgr.ExclusionRemove(args[0])
			if err != nil {
				return fmt.Errorf("remove exclusion: %w", err)
			}
			if !removed {
				return fmt.Errorf("exclusion not found: %s", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exclusion removed: %s\n", args[0])
			return nil
		},
	}
}

func newExclusionListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List exclusion rules",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")

			rules, err := a.mgr.ExclusionList()
			if err != nil {
				return fmt.Errorf("list exclusions: %w", err)
			}

			if asJSON {
				return outputJSON(cmd, rules)
			}

			if len(rules) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no exclusion rules")
				return nil
			}
			for _, r := range rules {
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s  %s\n", r.Type, r.Pattern)
			}
			return nil
		},
	}
}
