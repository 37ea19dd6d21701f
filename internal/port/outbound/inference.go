package outbound

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/domain/valueobject"

	"github.com/google/uuid"
)

// ErrStaleBatchRef is returned when a completion or failure write names a
// batch_ref that does not match the document's current batch. This is a
// consistency error: it is reported, never silently applied.
var ErrStaleBatchRef = errors.New("document batch reference does not match")

// BatchRequest is one document's inference request within a batch. The
// document ID becomes the custom_id correlation key on the wire.
type BatchRequest struct {
	DocumentID uuid.UUID
	Text       string
}

// ProviderBatch is the provider's view of a batch, as returned by submit,
// poll, and list calls.
type ProviderBatch struct {
	BatchRef     string
	Status       valueobject.BatchStatus
	InputFileID  string
	OutputFileID string
	CreatedAt    time.Time
}

// BatchInferenceClient is the contract for the external asynchronous batch
// inference API (OpenAI Batch API semantics).
type BatchInferenceClient interface {
	// SubmitBatch uploads one JSONL request file and opens a provider batch
	// over it. Holds no database state; callers persist the returned batch.
	SubmitBatch(ctx context.Context, requests []BatchRequest) (*ProviderBatch, error)

	// GetBatch polls the provider for the current status of a batch.
	GetBatch(ctx context.Context, batchRef string) (*ProviderBatch, error)

	// ListBatches pages through provider-side batches, newest first. Used by
	// the recovery tool when local tracking state has been lost.
	ListBatches(ctx context.Context, after string, limit int) ([]*ProviderBatch, string, error)

	// DownloadOutput streams the JSONL output artifact of a completed batch.
	// The caller owns closing the reader.
	DownloadOutput(ctx context.Context, outputFileID string) (io.ReadCloser, error)
}

// ProviderError is a typed error from the inference provider. Retryable
// errors (rate limits, transient network failures) are retried with backoff
// at the call site and never surface as document-level failures.
type ProviderError struct {
	StatusCode int
	Code       string
	Message    string
	Retryable  bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error (status=%d, code=%s): %s", e.StatusCode, e.Code, e.Message)
}

// IsRateLimit reports whether the provider rejected the call for quota.
func (e *ProviderError) IsRateLimit() bool {
	return e.StatusCode == 429 || e.Code == "rate_limit_exceeded"
}

// EventPublisher pushes lifecycle events to downstream consumers (the
// dashboard and statistics jobs). Publishing is best-effort; a publish
// failure never affects document state.
type EventPublisher interface {
	PublishDocumentAnalyzed(ctx context.Context, documentID uuid.UUID, mentionCount int) error
	PublishDocumentFailed(ctx context.Context, documentID uuid.UUID, reason string) error
	Close()
}
