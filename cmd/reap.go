package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/adapter/outbound/repository"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/application/worker"

	"github.com/spf13/cobra"
)

// newReapCmd creates and returns the reap command.
func newReapCmd() *cobra.Command {
	var (
		dryRun bool
		hours  int
	)

	cmd := &cobra.Command{
		Use:   "reap",
		Short: "Return stale claimed documents to pending",
		Long: `Find documents that have been claimed longer than the threshold and return
them to pending, clearing their batch references. Age is the only criterion;
the provider's batch status is logged but never blocks the reset.

Runs as a dry run by default; pass --dry-run=false to apply changes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReap(cmd, dryRun, hours)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", true, "Report without changing any state")
	cmd.Flags().IntVar(&hours, "hours", 0, "Claim age threshold in hours (default: pipeline.stuck_threshold)")
	return cmd
}

func runReap(cmd *cobra.Command, dryRun bool, hours int) error {
	cfg := GetConfig()
	ctx := context.Background()

	threshold := cfg.Pipeline.StuckThreshold
	if hours > 0 {
		threshold = time.Duration(hours) * time.Hour
	}

	dbPool, err := setupDatabaseConnection(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbPool.Close()

	client, err := newInferenceClient(cfg)
	if err != nil {
		return err
	}

	documentRepo := repository.NewPostgreSQLDocumentRepository(dbPool)
	batchRepo := repository.NewPostgreSQLBatchRepository(dbPool)

	metrics, err := worker.NewPipelineMetrics()
	if err != nil {
		return err
	}

	reaper := worker.NewStuckDocumentReaper(documentRepo, batchRepo, client, metrics)
	report, err := reaper.Run(ctx, threshold, dryRun)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	verb := "requeued"
	if dryRun {
		verb = "would requeue"
	}
	fmt.Fprintf(out, "Stuck documents: %d\n", report.Stuck)
	fmt.Fprintf(out, "  %s (batch attached): %d\n", verb, report.Requeued)
	fmt.Fprintf(out, "  %s (never attached): %d\n", verb, report.ResetUnattached)
	if dryRun {
		fmt.Fprintln(out, "Dry run: no changes applied. Re-run with --dry-run=false to apply.")
	}

	return nil
}

func init() {
	rootCmd.AddCommand(newReapCmd())
}
