package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var compositionCmd = &cobra.Command{
	Use:   "composition",
	Short: "Compare, average and promote composition versions",
}

var compositionCompareCmd = &cobra.Command{
	Use:   "compare <id-a> <id-b>",
	Short: "Compare two stored compositions",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		result, err := e.Service.CompareCompositions(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

var compositionAverageCmd = &cobra.Command{
	Use:   "average <id-a> <id-b>",
	Short: "Average two compositions into a new provisional version",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		record, warn, err := e.Service.AverageCompositions(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if warn != nil {
			zap.L().Warn("averaged composition outside tolerance band", zap.String("detail", warn.String()))
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(record)
	},
}

var promoteSource string

var compositionPromoteCmd = &cobra.Command{
	Use:   "promote <id>",
	Short: "Promote a provisional composition to definitive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		record, err := e.Service.PromoteComposition(cmd.Context(), args[0], nil, promoteSource)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(record)
	},
}

func init() {
	compositionPromoteCmd.Flags().StringVar(&promoteSource, "source", "", "trusted source authorizing the promotion")
	compositionPromoteCmd.MarkFlagRequired("source")
	compositionCmd.AddCommand(compositionCompareCmd, compositionAverageCmd, compositionPromoteCmd)
	rootCmd.AddCommand(compositionCmd)
}
