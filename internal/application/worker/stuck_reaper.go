package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/application/common/slogger"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/domain/entity"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/port/outbound"

	"github.com/google/uuid"
)

// ReapReport summarizes one reaper pass.
type ReapReport struct {
	Stuck           int
	Requeued        int
	ResetUnattached int
}

// StuckDocumentReaper returns documents to pending when their claim has
// outlived the threshold: the submitter crashed before attaching a batch, the
// batch was reconciled without them, or the batch was silently dropped. Age is
// the only criterion; the provider's last known batch status is reported for
// the operator but never blocks the reset.
type StuckDocumentReaper struct {
	documentRepo outbound.DocumentRepository
	batchRepo    outbound.BatchRepository
	client       outbound.BatchInferenceClient
	metrics      *PipelineMetrics

	// now is swappable in tests.
	now func() time.Time
}

// NewStuckDocumentReaper creates a stuck document reaper.
func NewStuckDocumentReaper(
	documentRepo outbound.DocumentRepository,
	batchRepo outbound.BatchRepository,
	client outbound.BatchInferenceClient,
	metrics *PipelineMetrics,
) *StuckDocumentReaper {
	return &StuckDocumentReaper{
		documentRepo: documentRepo,
		batchRepo:    batchRepo,
		client:       client,
		metrics:      metrics,
		now:          time.Now,
	}
}

// Run performs one reaper pass. With dryRun set it reports what would change
// without touching any state or calling the provider.
func (r *StuckDocumentReaper) Run(ctx context.Context, olderThan time.Duration, dryRun bool) (ReapReport, error) {
	var report ReapReport

	stuck, err := r.documentRepo.FindStuck(ctx, olderThan, r.now())
	if err != nil {
		return report, fmt.Errorf("failed to find stuck documents: %w", err)
	}
	report.Stuck = len(stuck)
	if len(stuck) == 0 {
		return report, nil
	}

	unattached, byBatch := groupStuck(stuck)

	if len(unattached) > 0 {
		if dryRun {
			report.ResetUnattached = len(unattached)
		} else {
			reset, resetErr := r.documentRepo.ResetClaimed(ctx, unattached)
			if resetErr != nil {
				return report, fmt.Errorf("failed to reset unattached claims: %w", resetErr)
			}
			report.ResetUnattached = reset
		}
	}

	for batchRef, docs := range byBatch {
		if dryRun {
			report.Requeued += len(docs)
			continue
		}

		r.noteProviderState(ctx, batchRef)

		requeued, requeueErr := r.documentRepo.RequeueBatch(ctx, batchRef)
		if requeueErr != nil {
			return report, fmt.Errorf("failed to requeue stuck batch %s: %w", batchRef, requeueErr)
		}
		report.Requeued += requeued
		r.metrics.RecordRequeued(ctx, requeued)

		// Drop the orphaned tracking row if one survived.
		if archiveErr := r.batchRepo.Archive(ctx, batchRef); archiveErr != nil {
			slogger.Warn(ctx, "Failed to archive orphaned batch row", slogger.Fields{
				"batch_ref": batchRef,
				"error":     archiveErr.Error(),
			})
		}
	}

	slogger.Info(ctx, "Reaper pass finished", slogger.Fields{
		"stuck":            report.Stuck,
		"requeued":         report.Requeued,
		"reset_unattached": report.ResetUnattached,
		"dry_run":          dryRun,
	})

	return report, nil
}

// noteProviderState asks the provider about the batch so the operator can see
// when an over-threshold batch was still open. Best effort: lookup failures
// and open batches are logged, never acted on.
func (r *StuckDocumentReaper) noteProviderState(ctx context.Context, batchRef string) {
	providerBatch, err := r.client.GetBatch(ctx, batchRef)
	if err != nil {
		slogger.Warn(ctx, "Could not look up stuck batch at provider, requeueing anyway", slogger.Fields{
			"batch_ref": batchRef,
			"error":     err.Error(),
		})
		return
	}
	if !providerBatch.Status.IsTerminal() {
		slogger.Warn(ctx, "Batch still open at provider past the stuck threshold, requeueing its documents", slogger.Fields{
			"batch_ref": batchRef,
			"status":    providerBatch.Status.String(),
		})
	}
}

// groupStuck splits stuck documents into unattached claims and per-batch sets.
func groupStuck(stuck []*entity.Document) ([]uuid.UUID, map[string][]uuid.UUID) {
	var unattached []uuid.UUID
	byBatch := make(map[string][]uuid.UUID)
	for _, doc := range stuck {
		if ref := doc.BatchRef(); ref != nil {
			byBatch[*ref] = append(byBatch[*ref], doc.ID())
		} else {
			unattached = append(unattached, doc.ID())
		}
	}
	return unattached, byBatch
}
