package entity

import (
	"errors"
	"time"

	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/domain/valueobject"

	"github.com/google/uuid"
)

// Domain errors for document state transitions.
var (
	ErrInvalidSourceURL     = errors.New("source URL cannot be empty")
	ErrEmptyDocumentText    = errors.New("document text cannot be empty")
	ErrInvalidTransition    = errors.New("invalid document status transition")
	ErrBatchRefRequired     = errors.New("claimed document requires a batch reference")
	ErrDocumentAlreadyOwned = errors.New("document already belongs to an open batch")
)

// Document represents a news article moving through the analysis lifecycle.
// Its status and batch reference are owned by the document store; all other
// components treat a Document as a read-only snapshot.
type Document struct {
	id           uuid.UUID
	sourceURL    string
	rawText      string
	status       valueobject.DocumentStatus
	batchRef     *string
	attemptCount int
	createdAt    time.Time
	updatedAt    time.Time
	processedAt  *time.Time
}

// NewDocument creates a new pending document.
func NewDocument(sourceURL, rawText string) (*Document, error) {
	if sourceURL == "" {
		return nil, ErrInvalidSourceURL
	}
	if rawText == "" {
		return nil, ErrEmptyDocumentText
	}

	now := time.Now()
	return &Document{
		id:        uuid.New(),
		sourceURL: sourceURL,
		rawText:   rawText,
		status:    valueobject.DocumentStatusPending,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// RestoreDocument creates a Document entity from stored data.
func RestoreDocument(
	id uuid.UUID,
	sourceURL string,
	rawText string,
	status valueobject.DocumentStatus,
	batchRef *string,
	attemptCount int,
	createdAt time.Time,
	updatedAt time.Time,
	processedAt *time.Time,
) *Document {
	return &Document{
		id:           id,
		sourceURL:    sourceURL,
		rawText:      rawText,
		status:       status,
		batchRef:     batchRef,
		attemptCount: attemptCount,
		createdAt:    createdAt,
		updatedAt:    updatedAt,
		processedAt:  processedAt,
	}
}

// ID returns the document ID.
func (d *Document) ID() uuid.UUID {
	return d.id
}

// SourceURL returns the URL the document was acquired from.
func (d *Document) SourceURL() string {
	return d.sourceURL
}

// RawText returns the document body submitted for analysis.
func (d *Document) RawText() string {
	return d.rawText
}

// Status returns the current analysis status.
func (d *Document) Status() valueobject.DocumentStatus {
	return d.status
}

// BatchRef returns the provider batch reference, non-nil only while claimed.
func (d *Document) BatchRef() *string {
	return d.batchRef
}

// AttemptCount returns the number of failed analysis attempts.
func (d *Document) AttemptCount() int {
	return d.attemptCount
}

// CreatedAt returns the creation timestamp.
func (d *Document) CreatedAt() time.Time {
	return d.createdAt
}

// UpdatedAt returns the last transition timestamp.
func (d *Document) UpdatedAt() time.Time {
	return d.updatedAt
}

// ProcessedAt returns the completion timestamp, nil until completed.
func (d *Document) ProcessedAt() *time.Time {
	return d.processedAt
}

// Claim transitions the document from pending to claimed. The batch
// reference is attached later, once the provider has accepted the batch.
func (d *Document) Claim() error {
	if !d.status.CanTransitionTo(valueobject.DocumentStatusClaimed) {
		return ErrInvalidTransition
	}
	d.status = valueobject.DocumentStatusClaimed
	d.updatedAt = time.Now()
	return nil
}

// AttachBatch records the provider batch that now owns this document.
func (d *Document) AttachBatch(batchRef string) error {
	if d.status != valueobject.DocumentStatusClaimed {
		return ErrInvalidTransition
	}
	if d.batchRef != nil && *d.batchRef != batchRef {
		return ErrDocumentAlreadyOwned
	}
	d.batchRef = &batchRef
	d.updatedAt = time.Now()
	return nil
}

// Complete transitions the document to completed and stamps processed_at.
func (d *Document) Complete() error {
	if !d.status.CanTransitionTo(valueobject.DocumentStatusCompleted) {
		return ErrInvalidTransition
	}
	now := time.Now()
	d.status = valueobject.DocumentStatusCompleted
	d.batchRef = nil
	d.processedAt = &now
	d.updatedAt = now
	return nil
}

// Fail transitions the document to failed and counts the attempt.
func (d *Document) Fail() error {
	if !d.status.CanTransitionTo(valueobject.DocumentStatusFailed) {
		return ErrInvalidTransition
	}
	d.status = valueobject.DocumentStatusFailed
	d.batchRef = nil
	d.attemptCount++
	d.updatedAt = time.Now()
	return nil
}

// Requeue returns a claimed document to pending, clearing its batch
// reference and counting the attempt.
func (d *Document) Requeue() error {
	if !d.status.CanTransitionTo(valueobject.DocumentStatusPending) {
		return ErrInvalidTransition
	}
	d.status = valueobject.DocumentStatusPending
	d.batchRef = nil
	d.attemptCount++
	d.updatedAt = time.Now()
	return nil
}

// Age reports how long the document has sat in its current status.
func (d *Document) Age(now time.Time) time.Duration {
	return now.Sub(d.updatedAt)
}
