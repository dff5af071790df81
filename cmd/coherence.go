package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var coherenceCmd = &cobra.Command{
	Use:   "coherence",
	Short: "Inspect submission coherence reports",
}

var coherenceReportsCmd = &cobra.Command{
	Use:   "reports <material-id>",
	Short: "List stored coherence reports for a material",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		reports, err := e.Store.ListCoherenceReports(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	},
}

func init() {
	coherenceCmd.AddCommand(coherenceReportsCmd)
	rootCmd.AddCommand(coherenceCmd)
}
