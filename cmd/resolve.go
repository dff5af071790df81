package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	resolveSupplier string
	resolveForce    bool
	resolveAll      bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [material-id]",
	Short: "Rebuild canonical records from stored observations",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if resolveAll {
			return resolveAllMaterials(cmd, e)
		}

		if len(args) == 0 {
			return eris.New("material id required unless --all is set")
		}

		record, err := e.Service.ResolveCanonicalRecord(ctx, args[0], resolveSupplier, resolveForce)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(record)
	},
}

// resolveAllMaterials rebuilds records for every stored material concurrently.
// Ineligible pairs are logged and skipped rather than failing the batch.
func resolveAllMaterials(cmd *cobra.Command, e *env) error {
	ctx := cmd.Context()
	materials, err := e.Store.ListMaterials(ctx)
	if err != nil {
		return err
	}
	if len(materials) == 0 {
		zap.L().Info("no materials stored")
		return nil
	}

	concurrency := cfg.Batch.MaxConcurrentMaterials
	if concurrency <= 0 {
		concurrency = 5
	}
	zap.L().Info("resolving all materials",
		zap.Int("materials", len(materials)),
		zap.Int("concurrency", concurrency),
	)

	var resolved, skipped atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, m := range materials {
		g.Go(func() error {
			_, err := e.Service.ResolveCanonicalRecord(gctx, m.ID, resolveSupplier, resolveForce)
			if err != nil {
				skipped.Add(1)
				zap.L().Warn("resolve skipped",
					zap.String("material", m.ID),
					zap.Error(err),
				)
				return nil
			}
			resolved.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	zap.L().Info("batch resolve complete",
		zap.Int64("resolved", resolved.Load()),
		zap.Int64("skipped", skipped.Load()),
	)
	return nil
}

func init() {
	resolveCmd.Flags().StringVar(&resolveSupplier, "supplier", "", "supplier code")
	resolveCmd.Flags().BoolVar(&resolveForce, "force", false, "bypass the eligibility gate")
	resolveCmd.Flags().BoolVar(&resolveAll, "all", false, "resolve every stored material")
	resolveCmd.MarkFlagRequired("supplier")
	rootCmd.AddCommand(resolveCmd)
}
