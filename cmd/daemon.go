package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/adapter/outbound/repository"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/application/common/slogger"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/application/worker"

	"github.com/spf13/cobra"
)

// newDaemonCmd creates and returns the daemon command.
func newDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the batch analysis pipeline",
		Long: `Run the batch analysis pipeline daemon.

The daemon:
- Claims pending documents and submits them as provider batches
- Polls open batches and ingests completed results
- Sweeps open batches once at startup so work interrupted by a previous
  shutdown resumes immediately
- Shuts down gracefully on SIGINT/SIGTERM`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runDaemon()
		},
	}
}

func runDaemon() error {
	cfg := GetConfig()

	slogger.InfoNoCtx("Starting pipeline daemon", slogger.Fields{
		"claim_size":      cfg.Pipeline.ClaimSize,
		"submit_interval": cfg.Pipeline.SubmitInterval.String(),
		"poll_interval":   cfg.Pipeline.PollInterval.String(),
	})

	dbPool, err := setupDatabaseConnection(cfg)
	if err != nil {
		slogger.ErrorNoCtx("Failed to create database connection pool", slogger.Fields{"error": err.Error()})
		return err
	}
	defer dbPool.Close()

	client, err := newInferenceClient(cfg)
	if err != nil {
		slogger.ErrorNoCtx("Failed to create inference client", slogger.Fields{"error": err.Error()})
		return err
	}

	publisher := newEventPublisher(cfg)
	defer publisher.Close()

	shutdownTelemetry, err := setupTelemetry()
	if err != nil {
		slogger.ErrorNoCtx("Failed to set up telemetry", slogger.Fields{"error": err.Error()})
		return err
	}
	defer shutdownTelemetry()

	metrics, err := worker.NewPipelineMetrics()
	if err != nil {
		slogger.ErrorNoCtx("Failed to register pipeline metrics", slogger.Fields{"error": err.Error()})
		return err
	}

	documentRepo := repository.NewPostgreSQLDocumentRepository(dbPool)
	batchRepo := repository.NewPostgreSQLBatchRepository(dbPool)

	ingestor := worker.NewResultIngestor(documentRepo, client, publisher, metrics)

	submitter := worker.NewBatchSubmitter(documentRepo, batchRepo, client, metrics, worker.BatchSubmitterConfig{
		ClaimSize:      cfg.Pipeline.ClaimSize,
		SubmitInterval: cfg.Pipeline.SubmitInterval,
		InitialBackoff: cfg.Pipeline.InitialBackoff,
		MaxBackoff:     cfg.Pipeline.MaxBackoff,
	})

	poller := worker.NewBatchPoller(documentRepo, batchRepo, client, ingestor, metrics, worker.BatchPollerConfig{
		PollInterval:        cfg.Pipeline.PollInterval,
		MaxConcurrentPolls:  cfg.Pipeline.MaxConcurrentPolls,
		MaxDocumentAttempts: cfg.Pipeline.MaxDocumentAttempts,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Startup recovery: reconcile batches the previous run left open before
	// the ticker loops begin.
	if err := poller.PollOnce(ctx); err != nil {
		slogger.Error(ctx, "Startup reconciliation sweep failed", slogger.Fields{"error": err.Error()})
	}

	if err := submitter.Start(ctx); err != nil {
		return err
	}
	if err := poller.Start(ctx); err != nil {
		submitter.Stop()
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	slogger.InfoNoCtx("Shutting down", slogger.Fields{"signal": sig.String()})
	cancel()
	submitter.Stop()
	poller.Stop()

	return nil
}

func init() {
	rootCmd.AddCommand(newDaemonCmd())
}
