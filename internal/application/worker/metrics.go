package worker

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PipelineMetrics holds the OTel instruments shared by the pipeline workers.
type PipelineMetrics struct {
	documentsClaimed   metric.Int64Counter
	batchesSubmitted   metric.Int64Counter
	batchesReconciled  metric.Int64Counter
	documentsCompleted metric.Int64Counter
	documentsFailed    metric.Int64Counter
	documentsRequeued  metric.Int64Counter
	ingestDuration     metric.Float64Histogram
}

// NewPipelineMetrics registers the pipeline instruments on the global meter.
func NewPipelineMetrics() (*PipelineMetrics, error) {
	meter := otel.Meter("newsbias/pipeline")

	documentsClaimed, err := meter.Int64Counter(
		"pipeline_documents_claimed_total",
		metric.WithDescription("Total number of documents claimed for submission"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create claimed counter: %w", err)
	}

	batchesSubmitted, err := meter.Int64Counter(
		"pipeline_batches_submitted_total",
		metric.WithDescription("Total number of batches accepted by the provider"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create submitted counter: %w", err)
	}

	batchesReconciled, err := meter.Int64Counter(
		"pipeline_batches_reconciled_total",
		metric.WithDescription("Total number of batches reconciled to a terminal status"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reconciled counter: %w", err)
	}

	documentsCompleted, err := meter.Int64Counter(
		"pipeline_documents_completed_total",
		metric.WithDescription("Total number of documents completed with stored mentions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create completed counter: %w", err)
	}

	documentsFailed, err := meter.Int64Counter(
		"pipeline_documents_failed_total",
		metric.WithDescription("Total number of documents transitioned to failed"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create failed counter: %w", err)
	}

	documentsRequeued, err := meter.Int64Counter(
		"pipeline_documents_requeued_total",
		metric.WithDescription("Total number of documents requeued after batch failure"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create requeued counter: %w", err)
	}

	ingestDuration, err := meter.Float64Histogram(
		"pipeline_ingest_duration_seconds",
		metric.WithDescription("Duration of batch output ingestion"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ingest histogram: %w", err)
	}

	return &PipelineMetrics{
		documentsClaimed:   documentsClaimed,
		batchesSubmitted:   batchesSubmitted,
		batchesReconciled:  batchesReconciled,
		documentsCompleted: documentsCompleted,
		documentsFailed:    documentsFailed,
		documentsRequeued:  documentsRequeued,
		ingestDuration:     ingestDuration,
	}, nil
}

// RecordClaimed counts documents claimed by the submitter.
func (m *PipelineMetrics) RecordClaimed(ctx context.Context, count int) {
	if m == nil {
		return
	}
	m.documentsClaimed.Add(ctx, int64(count))
}

// RecordBatchSubmitted counts one provider-accepted batch.
func (m *PipelineMetrics) RecordBatchSubmitted(ctx context.Context, size int) {
	if m == nil {
		return
	}
	m.batchesSubmitted.Add(ctx, 1, metric.WithAttributes(attribute.Int("batch_size", size)))
}

// RecordBatchReconciled counts one batch reaching a terminal status.
func (m *PipelineMetrics) RecordBatchReconciled(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.batchesReconciled.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordCompleted counts a completed document.
func (m *PipelineMetrics) RecordCompleted(ctx context.Context) {
	if m == nil {
		return
	}
	m.documentsCompleted.Add(ctx, 1)
}

// RecordFailed counts a failed document, attributed to its failure class.
func (m *PipelineMetrics) RecordFailed(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.documentsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordRequeued counts documents returned to pending.
func (m *PipelineMetrics) RecordRequeued(ctx context.Context, count int) {
	if m == nil {
		return
	}
	m.documentsRequeued.Add(ctx, int64(count))
}

// RecordIngestDuration records how long one batch output took to ingest.
func (m *PipelineMetrics) RecordIngestDuration(ctx context.Context, seconds float64) {
	if m == nil {
		return
	}
	m.ingestDuration.Record(ctx, seconds)
}
