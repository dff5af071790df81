package main

import (
	"context"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/materia-group/blueline/internal/importer"
	"github.com/materia-group/blueline/internal/service"
)

var importSource string

var importCmd = &cobra.Command{
	Use:   "import <workbook-path-or-ftp-url>",
	Short: "Import supplier submission workbooks",
	Long:  "Parses a submission workbook from a local path or an ftp:// URL and runs each submission through coherence validation and canonical record resolution.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		opts := importer.Options{SkipRows: cfg.Import.SkipRows, SourceID: importSource}

		var submissions []*service.Submission
		if strings.HasPrefix(args[0], "ftp://") {
			timeout := time.Duration(cfg.Import.FTPTimeoutSecs) * time.Second
			submissions, err = importer.NewFTPImporter(timeout).Fetch(ctx, args[0], opts)
		} else {
			submissions, err = importer.ParseWorkbook(args[0], opts)
		}
		if err != nil {
			return err
		}

		return ingestAll(ctx, e, submissions)
	},
}

func ingestAll(ctx context.Context, e *env, submissions []*service.Submission) error {
	var accepted, rejected, failed int
	for _, sub := range submissions {
		result, err := e.Service.IngestSubmission(ctx, sub)
		if err != nil {
			failed++
			zap.L().Error("import: submission failed",
				zap.String("material", sub.MaterialID),
				zap.String("supplier", sub.SupplierCode),
				zap.Error(err),
			)
			continue
		}
		if result.Accepted {
			accepted++
		} else {
			rejected++
			zap.L().Warn("import: submission rejected",
				zap.String("material", sub.MaterialID),
				zap.String("supplier", sub.SupplierCode),
				zap.Int("score", result.Report.Score),
			)
		}
	}

	zap.L().Info("import complete",
		zap.Int("accepted", accepted),
		zap.Int("rejected", rejected),
		zap.Int("failed", failed),
	)
	return nil
}

func init() {
	importCmd.Flags().StringVar(&importSource, "source", "", "override the source column for every row")
	rootCmd.AddCommand(importCmd)
}
