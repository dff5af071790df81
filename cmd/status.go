package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/materia-group/blueline/internal/monitoring"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a snapshot of reconciliation state",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		snap, err := monitoring.NewCollector(e.Store).Collect(cmd.Context())
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
