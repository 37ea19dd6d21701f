package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/adapter/outbound/repository"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/application/worker"

	"github.com/spf13/cobra"
)

// newRecoverCmd creates and returns the recover command.
func newRecoverCmd() *cobra.Command {
	var (
		dryRun       bool
		batchDir     string
		skipDownload bool
		window       time.Duration
		year         int
		limit        int
		batchIDs     []string
	)

	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Rebuild document state from provider-side batches",
		Long: `Walk the provider's batch listing and re-ingest completed outputs whose
results never reached the document store (lost tracking state, crash after
submission, database restore from an old backup).

Recovery is idempotent: already-completed documents are untouched and results
land on any known document that has not completed yet, whatever batch the
local store last knew it under. It never creates documents.

With --batch-dir, downloaded outputs and a manifest are kept on disk so a
later run with --skip-download can work offline.

Runs as a dry run by default; pass --dry-run=false to apply changes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRecover(cmd, worker.RecoveryOptions{
				Window:       window,
				Year:         year,
				BatchRefs:    batchIDs,
				Limit:        limit,
				BatchDir:     batchDir,
				SkipDownload: skipDownload,
				DryRun:       dryRun,
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", true, "Report without changing any state")
	cmd.Flags().StringVar(&batchDir, "batch-dir", "", "Directory to cache downloaded outputs and the manifest")
	cmd.Flags().BoolVar(&skipDownload, "skip-download", false, "Ingest from files already in --batch-dir")
	cmd.Flags().DurationVar(&window, "window", 0, "Only recover batches created within this window (e.g. 720h)")
	cmd.Flags().IntVar(&year, "year", 0, "Only recover batches created in this calendar year")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of provider batches to examine")
	cmd.Flags().StringArrayVar(&batchIDs, "batch-id", nil, "Recover only these batch IDs (repeatable)")
	return cmd
}

func runRecover(cmd *cobra.Command, opts worker.RecoveryOptions) error {
	cfg := GetConfig()
	ctx := context.Background()

	dbPool, err := setupDatabaseConnection(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbPool.Close()

	client, err := newInferenceClient(cfg)
	if err != nil {
		return err
	}

	publisher := newEventPublisher(cfg)
	defer publisher.Close()

	metrics, err := worker.NewPipelineMetrics()
	if err != nil {
		return err
	}

	documentRepo := repository.NewPostgreSQLDocumentRepository(dbPool)
	batchRepo := repository.NewPostgreSQLBatchRepository(dbPool)
	ingestor := worker.NewResultIngestor(documentRepo, client, publisher, metrics)

	recovery := worker.NewRecoveryService(documentRepo, batchRepo, client, ingestor, metrics)
	report, err := recovery.Run(ctx, opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Batches examined: %d, ingested: %d, skipped: %d\n",
		report.Examined, report.Ingested, report.Skipped)
	fmt.Fprintf(out, "Records: %d completed, %d failed, %d stale, %d malformed\n",
		report.Stats.Completed, report.Stats.Failed, report.Stats.Stale, report.Stats.Malformed)
	if opts.DryRun {
		fmt.Fprintln(out, "Dry run: no changes applied. Re-run with --dry-run=false to apply.")
	}

	return nil
}

func init() {
	rootCmd.AddCommand(newRecoverCmd())
}
