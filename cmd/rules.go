package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/materia-group/blueline/internal/resolve"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and validate the field rule table",
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configured rule table",
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := resolve.LoadRules(cfg.Rules.Path)
		if err != nil {
			return err
		}
		zap.L().Info("rule table valid",
			zap.String("path", cfg.Rules.Path),
			zap.Int("fields", len(table.FieldIDs())),
		)
		return nil
	},
}

var rulesShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the configured rule table",
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := resolve.LoadRules(cfg.Rules.Path)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "FIELD\tSTRATEGY\tAPPLIES TO\tSOURCE")
		for _, fieldID := range table.FieldIDs() {
			rules := table.RulesFor(fieldID)
			sort.Slice(rules, func(i, j int) bool { return rules[i].AppliesTo < rules[j].AppliesTo })
			for _, r := range rules {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.FieldID, r.Strategy, r.AppliesTo, r.Source)
			}
		}
		return w.Flush()
	},
}

func init() {
	rulesCmd.AddCommand(rulesValidateCmd, rulesShowCmd)
	rootCmd.AddCommand(rulesCmd)
}
