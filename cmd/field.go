package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var fieldSupplier string

var fieldCmd = &cobra.Command{
	Use:   "field",
	Short: "Inspect and edit canonical record fields",
}

var fieldSetCmd = &cobra.Command{
	Use:   "set <material-id> <field-id> <value>",
	Short: "Write a manual value into a canonical record field",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		record, err := e.Service.SetManualField(cmd.Context(), args[0], fieldSupplier, args[1], args[2])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(record.ResolvedFields[args[1]])
	},
}

func init() {
	fieldCmd.PersistentFlags().StringVar(&fieldSupplier, "supplier", "", "supplier code")
	fieldCmd.MarkPersistentFlagRequired("supplier")
	fieldCmd.AddCommand(fieldSetCmd)
	rootCmd.AddCommand(fieldCmd)
}
