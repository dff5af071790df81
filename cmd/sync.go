package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/materia-group/blueline/internal/syncer"
)

var syncLimit int

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push pending canonical records to the downstream webhook",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		_, err = syncer.New(e.Store, cfg.Sync).Run(ctx, syncLimit)
		return err
	},
}

func init() {
	syncCmd.Flags().IntVar(&syncLimit, "limit", 100, "max records to push per run")
	rootCmd.AddCommand(syncCmd)
}
