package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/application/common/retry"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/application/common/slogger"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/domain/entity"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/domain/valueobject"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/port/outbound"

	"golang.org/x/sync/errgroup"
)

// BatchPollerConfig holds configuration for batch polling.
type BatchPollerConfig struct {
	PollInterval        time.Duration
	MaxConcurrentPolls  int
	MaxDocumentAttempts int
}

// BatchPoller reconciles open batches against the provider. Completed batches
// are ingested and archived; failed batches have their documents requeued or,
// past the retry ceiling, failed.
type BatchPoller struct {
	documentRepo outbound.DocumentRepository
	batchRepo    outbound.BatchRepository
	client       outbound.BatchInferenceClient
	ingestor     *ResultIngestor
	metrics      *PipelineMetrics
	config       BatchPollerConfig

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewBatchPoller creates a new batch poller with default values applied.
func NewBatchPoller(
	documentRepo outbound.DocumentRepository,
	batchRepo outbound.BatchRepository,
	client outbound.BatchInferenceClient,
	ingestor *ResultIngestor,
	metrics *PipelineMetrics,
	config BatchPollerConfig,
) *BatchPoller {
	if config.PollInterval == 0 {
		config.PollInterval = 1 * time.Minute
	}
	if config.MaxConcurrentPolls == 0 {
		config.MaxConcurrentPolls = 4
	}
	if config.MaxDocumentAttempts == 0 {
		config.MaxDocumentAttempts = 3
	}

	return &BatchPoller{
		documentRepo: documentRepo,
		batchRepo:    batchRepo,
		client:       client,
		ingestor:     ingestor,
		metrics:      metrics,
		config:       config,
		stopCh:       make(chan struct{}),
	}
}

// Start begins the polling loop.
func (p *BatchPoller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("batch poller is already running")
	}
	p.running = true
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.pollLoop(ctx)
	}()

	return nil
}

// Stop gracefully stops the batch poller.
func (p *BatchPoller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	close(p.stopCh)
	p.wg.Wait()
}

func (p *BatchPoller) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			if err := p.PollOnce(ctx); err != nil {
				slogger.Error(ctx, "Poll sweep failed", slogger.Fields{
					"error": err.Error(),
				})
			}
		}
	}
}

// PollOnce reconciles every open batch, oldest first, with bounded
// concurrency. One batch failing does not stop the sweep; cancellation does.
func (p *BatchPoller) PollOnce(ctx context.Context) error {
	batches, err := p.batchRepo.FindOpen(ctx)
	if err != nil {
		return fmt.Errorf("failed to list open batches: %w", err)
	}
	if len(batches) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.MaxConcurrentPolls)

	for _, batch := range batches {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := p.reconcileBatch(gctx, batch); err != nil {
				slogger.Error(gctx, "Failed to reconcile batch", slogger.Fields{
					"batch_ref": batch.BatchRef(),
					"error":     err.Error(),
				})
			}
			return nil
		})
	}

	return g.Wait()
}

// reconcileBatch polls one batch and applies its current provider status.
func (p *BatchPoller) reconcileBatch(ctx context.Context, batch *entity.AnalysisBatch) error {
	var providerBatch *outbound.ProviderBatch
	err := retry.WithRetry(ctx, func(ctx context.Context) error {
		var pollErr error
		providerBatch, pollErr = p.client.GetBatch(ctx, batch.BatchRef())
		return pollErr
	})
	if err != nil {
		return fmt.Errorf("failed to poll batch: %w", err)
	}

	status := providerBatch.Status
	switch {
	case status == batch.ProviderStatus():
		return nil

	case !status.IsTerminal():
		if err := batch.MarkStatus(status); err != nil {
			return err
		}
		return p.batchRepo.Update(ctx, batch)

	case status.IsFailure():
		return p.handleFailedBatch(ctx, batch, status)

	default:
		return p.handleCompletedBatch(ctx, batch, providerBatch.OutputFileID)
	}
}

// handleCompletedBatch ingests the output file, requeues members the provider
// gave no verdict for, and archives the batch.
func (p *BatchPoller) handleCompletedBatch(ctx context.Context, batch *entity.AnalysisBatch, outputFileID string) error {
	if outputFileID == "" {
		return fmt.Errorf("batch %s completed without an output file", batch.BatchRef())
	}

	stats, err := p.ingestor.IngestBatchOutput(ctx, batch.BatchRef(), outputFileID)
	if err != nil {
		// Leave the batch open; the next sweep retries and already-applied
		// records are no-ops.
		return err
	}

	// Members without an output line are still claimed under this ref.
	requeued, err := p.documentRepo.RequeueBatch(ctx, batch.BatchRef())
	if err != nil {
		return fmt.Errorf("failed to requeue unanswered documents: %w", err)
	}
	if requeued > 0 {
		p.metrics.RecordRequeued(ctx, requeued)
		slogger.Warn(ctx, "Batch output omitted some documents, requeued", slogger.Fields{
			"batch_ref": batch.BatchRef(),
			"requeued":  requeued,
		})
	}

	if err := p.batchRepo.Archive(ctx, batch.BatchRef()); err != nil {
		return fmt.Errorf("failed to archive batch: %w", err)
	}

	p.metrics.RecordBatchReconciled(ctx, reconcileOutcome(stats))
	slogger.Info(ctx, "Batch reconciled", slogger.Fields{
		"batch_ref": batch.BatchRef(),
		"completed": stats.Completed,
		"failed":    stats.Failed,
		"requeued":  requeued,
	})

	return nil
}

// handleFailedBatch decides between requeueing the whole batch and failing
// its documents, based on how many attempts they already carry.
func (p *BatchPoller) handleFailedBatch(ctx context.Context, batch *entity.AnalysisBatch, terminal valueobject.BatchStatus) error {
	maxAttempts, err := p.documentRepo.MaxAttemptCount(ctx, batch.BatchRef())
	if err != nil {
		return fmt.Errorf("failed to check attempt count: %w", err)
	}

	if maxAttempts+1 < p.config.MaxDocumentAttempts {
		requeued, requeueErr := p.documentRepo.RequeueBatch(ctx, batch.BatchRef())
		if requeueErr != nil {
			return fmt.Errorf("failed to requeue batch: %w", requeueErr)
		}
		p.metrics.RecordRequeued(ctx, requeued)
		slogger.Warn(ctx, "Batch failed at provider, documents requeued", slogger.Fields{
			"batch_ref": batch.BatchRef(),
			"status":    terminal.String(),
			"requeued":  requeued,
		})
	} else {
		for _, docID := range batch.DocumentIDs() {
			failErr := p.documentRepo.FailOne(ctx, docID, batch.BatchRef())
			if failErr != nil && !errors.Is(failErr, outbound.ErrStaleBatchRef) {
				return fmt.Errorf("failed to fail document %s: %w", docID, failErr)
			}
			if failErr == nil {
				p.metrics.RecordFailed(ctx, "batch_"+terminal.String())
			}
		}
		slogger.Error(ctx, "Batch failed past retry ceiling, documents failed", slogger.Fields{
			"batch_ref": batch.BatchRef(),
			"status":    terminal.String(),
			"documents": len(batch.DocumentIDs()),
		})
	}

	if err := p.batchRepo.Archive(ctx, batch.BatchRef()); err != nil {
		return fmt.Errorf("failed to archive batch: %w", err)
	}
	p.metrics.RecordBatchReconciled(ctx, terminal.String())

	return nil
}

func reconcileOutcome(stats IngestStats) string {
	if stats.Failed > 0 || stats.Malformed > 0 {
		return "completed_with_errors"
	}
	return "completed"
}
