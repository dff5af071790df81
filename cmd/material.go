package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/materia-group/blueline/internal/model"
)

var materialClass string

var materialCmd = &cobra.Command{
	Use:   "material",
	Short: "Manage tracked materials and their eligibility data",
}

var materialAddCmd = &cobra.Command{
	Use:   "add <id> <name>",
	Short: "Register a material",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		class := model.MaterialClass(materialClass)
		if !class.Valid() {
			return eris.Errorf("unknown material class %q", materialClass)
		}

		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		return e.Store.UpsertMaterial(cmd.Context(), model.Material{
			ID:        args[0],
			Name:      args[1],
			Class:     class,
			CreatedAt: time.Now().UTC(),
		})
	},
}

var materialListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked materials",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		materials, err := e.Store.ListMaterials(cmd.Context())
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(materials)
	},
}

var materialApproveCmd = &cobra.Command{
	Use:   "approve <id> <state>",
	Short: "Set a material's approval state",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		return e.Store.SetApprovalState(cmd.Context(), args[0], args[1])
	},
}

var purchaseSupplier string

var materialPurchaseCmd = &cobra.Command{
	Use:   "purchase <id>",
	Short: "Record a purchase event for a material and supplier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		return e.Store.AddPurchaseEvent(cmd.Context(), args[0], purchaseSupplier, time.Now().UTC())
	},
}

func init() {
	materialAddCmd.Flags().StringVar(&materialClass, "class", string(model.ClassAll), "material class (all, natural, synthetic)")
	materialPurchaseCmd.Flags().StringVar(&purchaseSupplier, "supplier", "", "supplier code")
	materialPurchaseCmd.MarkFlagRequired("supplier")
	materialCmd.AddCommand(materialAddCmd, materialListCmd, materialApproveCmd, materialPurchaseCmd)
	rootCmd.AddCommand(materialCmd)
}
