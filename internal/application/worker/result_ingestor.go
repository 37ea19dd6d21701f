package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/application/common/slogger"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/domain/analysis"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/domain/entity"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/port/outbound"

	"github.com/google/uuid"
)

// maxOutputLineBytes bounds one JSONL output line. Articles are large and the
// model echoes context snippets, so the default scanner buffer is too small.
const maxOutputLineBytes = 10 * 1024 * 1024

// IngestStats summarizes one ingestion pass over a batch output file.
type IngestStats struct {
	Completed int
	Failed    int
	Stale     int
	Malformed int
}

// ResultIngestor applies one batch's output records to the document store.
// Each record is isolated: a malformed or failed record affects only its own
// document, and re-running ingestion over the same file is a no-op.
type ResultIngestor struct {
	documentRepo outbound.DocumentRepository
	client       outbound.BatchInferenceClient
	publisher    outbound.EventPublisher
	metrics      *PipelineMetrics
}

// NewResultIngestor creates a result ingestor.
func NewResultIngestor(
	documentRepo outbound.DocumentRepository,
	client outbound.BatchInferenceClient,
	publisher outbound.EventPublisher,
	metrics *PipelineMetrics,
) *ResultIngestor {
	return &ResultIngestor{
		documentRepo: documentRepo,
		client:       client,
		publisher:    publisher,
		metrics:      metrics,
	}
}

// IngestBatchOutput downloads and applies the output file of a completed
// batch. Infrastructure errors (download, database) abort the pass and are
// returned; the next poll sweep retries safely because every applied record
// is idempotent.
func (i *ResultIngestor) IngestBatchOutput(ctx context.Context, batchRef, outputFileID string) (IngestStats, error) {
	body, err := i.client.DownloadOutput(ctx, outputFileID)
	if err != nil {
		return IngestStats{}, fmt.Errorf("failed to download output for batch %s: %w", batchRef, err)
	}
	defer body.Close()

	return i.IngestStream(ctx, batchRef, body)
}

// IngestStream applies batch output records from an already obtained reader,
// under the normal claimed-under-batchRef guard.
func (i *ResultIngestor) IngestStream(ctx context.Context, batchRef string, body io.Reader) (IngestStats, error) {
	return i.ingest(ctx, batchRef, body, false)
}

// IngestStreamRecovered applies batch output records in recovery mode:
// successful results land on any existing document that is not already
// completed, regardless of its current status or batch_ref. Failure records
// keep the normal guard so a requeued document does not lose its retry.
func (i *ResultIngestor) IngestStreamRecovered(ctx context.Context, batchRef string, body io.Reader) (IngestStats, error) {
	return i.ingest(ctx, batchRef, body, true)
}

func (i *ResultIngestor) ingest(ctx context.Context, batchRef string, body io.Reader, recovered bool) (IngestStats, error) {
	started := time.Now()

	var stats IngestStats
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxOutputLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		if err := i.applyRecord(ctx, batchRef, analysis.ParseRecord(line), recovered, &stats); err != nil {
			return stats, err
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("failed to read output for batch %s: %w", batchRef, err)
	}

	i.metrics.RecordIngestDuration(ctx, time.Since(started).Seconds())

	slogger.Info(ctx, "Ingested batch output", slogger.Fields{
		"batch_ref": batchRef,
		"completed": stats.Completed,
		"failed":    stats.Failed,
		"stale":     stats.Stale,
		"malformed": stats.Malformed,
	})

	return stats, nil
}

// applyRecord applies one parsed record. Only infrastructure errors propagate.
func (i *ResultIngestor) applyRecord(ctx context.Context, batchRef string, record analysis.Record, recovered bool, stats *IngestStats) error {
	if record.CustomID == uuid.Nil {
		// No document to attribute the line to.
		stats.Malformed++
		slogger.Warn(ctx, "Dropping unattributable output record", slogger.Fields{
			"batch_ref": batchRef,
			"reason":    record.Reason,
		})
		return nil
	}

	if record.IsSuccess() {
		return i.applySuccess(ctx, batchRef, record, recovered, stats)
	}
	return i.applyFailure(ctx, batchRef, record, stats)
}

func (i *ResultIngestor) applySuccess(ctx context.Context, batchRef string, record analysis.Record, recovered bool, stats *IngestStats) error {
	mentions := make([]outbound.MentionInput, 0, len(record.Entities))
	for _, e := range record.Entities {
		mentions = append(mentions, outbound.MentionInput{
			EntityName:  e.Name,
			EntityType:  e.Type,
			PowerScore:  e.PowerScore,
			MoralScore:  e.MoralScore,
			Context:     e.Context,
			ContextHash: entity.HashMentionContext(e.Context),
		})
	}

	var err error
	if recovered {
		err = i.documentRepo.CompleteRecovered(ctx, record.CustomID, mentions)
	} else {
		err = i.documentRepo.CompleteOne(ctx, record.CustomID, batchRef, mentions)
	}
	if err != nil {
		switch {
		case errors.Is(err, outbound.ErrStaleBatchRef):
			stats.Stale++
			slogger.Warn(ctx, "Skipping result for document no longer owned by batch", slogger.Fields{
				"document_id": record.CustomID.String(),
				"batch_ref":   batchRef,
				"error":       err.Error(),
			})
			return nil
		case errors.Is(err, outbound.ErrDocumentNotFound):
			// Results never create document rows.
			stats.Stale++
			slogger.Warn(ctx, "Skipping result for unknown document", slogger.Fields{
				"document_id": record.CustomID.String(),
				"batch_ref":   batchRef,
			})
			return nil
		}
		return fmt.Errorf("failed to complete document %s: %w", record.CustomID, err)
	}

	stats.Completed++
	i.metrics.RecordCompleted(ctx)

	// Best-effort: downstream consumers tolerate missed events.
	if pubErr := i.publisher.PublishDocumentAnalyzed(ctx, record.CustomID, len(mentions)); pubErr != nil {
		slogger.Debug(ctx, "Document analyzed event not published", slogger.Fields{
			"document_id": record.CustomID.String(),
			"error":       pubErr.Error(),
		})
	}

	return nil
}

func (i *ResultIngestor) applyFailure(ctx context.Context, batchRef string, record analysis.Record, stats *IngestStats) error {
	err := i.documentRepo.FailOne(ctx, record.CustomID, batchRef)
	if err != nil {
		if errors.Is(err, outbound.ErrStaleBatchRef) {
			stats.Stale++
			slogger.Warn(ctx, "Skipping failure for document no longer owned by batch", slogger.Fields{
				"document_id": record.CustomID.String(),
				"batch_ref":   batchRef,
				"error":       err.Error(),
			})
			return nil
		}
		return fmt.Errorf("failed to mark document %s failed: %w", record.CustomID, err)
	}

	stats.Failed++
	i.metrics.RecordFailed(ctx, string(record.Kind))

	slogger.Warn(ctx, "Document failed analysis", slogger.Fields{
		"document_id": record.CustomID.String(),
		"batch_ref":   batchRef,
		"kind":        string(record.Kind),
		"reason":      record.Reason,
	})

	if pubErr := i.publisher.PublishDocumentFailed(ctx, record.CustomID, record.Reason); pubErr != nil {
		slogger.Debug(ctx, "Document failed event not published", slogger.Fields{
			"document_id": record.CustomID.String(),
			"error":       pubErr.Error(),
		})
	}

	return nil
}
