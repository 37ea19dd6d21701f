package entity

import (
	"errors"
	"time"

	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/domain/valueobject"

	"github.com/google/uuid"
)

var (
	ErrEmptyBatchRef   = errors.New("batch reference cannot be empty")
	ErrEmptyMemberSet  = errors.New("batch must contain at least one document")
	ErrEmptyInputFile  = errors.New("batch input file ID cannot be empty")
	ErrBatchNotOpen    = errors.New("batch is already terminal")
	ErrEmptyOutputFile = errors.New("completed batch requires an output file ID")
)

// AnalysisBatch tracks one unit of work submitted to the inference provider.
// It is created when the provider accepts a submission and archived once its
// terminal status has been fully reconciled.
type AnalysisBatch struct {
	batchRef       string
	providerStatus valueobject.BatchStatus
	documentIDs    []uuid.UUID
	inputFileID    string
	outputFileID   *string
	createdAt      time.Time
	updatedAt      time.Time
}

// NewAnalysisBatch creates a batch record for a freshly accepted submission.
func NewAnalysisBatch(batchRef, inputFileID string, documentIDs []uuid.UUID) (*AnalysisBatch, error) {
	if batchRef == "" {
		return nil, ErrEmptyBatchRef
	}
	if inputFileID == "" {
		return nil, ErrEmptyInputFile
	}
	if len(documentIDs) == 0 {
		return nil, ErrEmptyMemberSet
	}

	now := time.Now()
	return &AnalysisBatch{
		batchRef:       batchRef,
		providerStatus: valueobject.BatchStatusValidating,
		documentIDs:    documentIDs,
		inputFileID:    inputFileID,
		createdAt:      now,
		updatedAt:      now,
	}, nil
}

// RestoreAnalysisBatch creates an AnalysisBatch entity from stored data.
func RestoreAnalysisBatch(
	batchRef string,
	providerStatus valueobject.BatchStatus,
	documentIDs []uuid.UUID,
	inputFileID string,
	outputFileID *string,
	createdAt time.Time,
	updatedAt time.Time,
) *AnalysisBatch {
	return &AnalysisBatch{
		batchRef:       batchRef,
		providerStatus: providerStatus,
		documentIDs:    documentIDs,
		inputFileID:    inputFileID,
		outputFileID:   outputFileID,
		createdAt:      createdAt,
		updatedAt:      updatedAt,
	}
}

// BatchRef returns the provider-assigned batch identifier.
func (b *AnalysisBatch) BatchRef() string {
	return b.batchRef
}

// ProviderStatus returns the last reconciled provider status.
func (b *AnalysisBatch) ProviderStatus() valueobject.BatchStatus {
	return b.providerStatus
}

// DocumentIDs returns the member document IDs.
func (b *AnalysisBatch) DocumentIDs() []uuid.UUID {
	return b.documentIDs
}

// InputFileID returns the provider file ID of the submitted JSONL input.
func (b *AnalysisBatch) InputFileID() string {
	return b.inputFileID
}

// OutputFileID returns the provider file ID of the results, nil until completed.
func (b *AnalysisBatch) OutputFileID() *string {
	return b.outputFileID
}

// CreatedAt returns the submission timestamp.
func (b *AnalysisBatch) CreatedAt() time.Time {
	return b.createdAt
}

// UpdatedAt returns the last reconciliation timestamp.
func (b *AnalysisBatch) UpdatedAt() time.Time {
	return b.updatedAt
}

// IsOpen reports whether the batch still needs reconciliation.
func (b *AnalysisBatch) IsOpen() bool {
	return !b.providerStatus.IsTerminal()
}

// MarkStatus records a provider status observed during a poll sweep.
func (b *AnalysisBatch) MarkStatus(status valueobject.BatchStatus) error {
	if b.providerStatus.IsTerminal() {
		return ErrBatchNotOpen
	}
	b.providerStatus = status
	b.updatedAt = time.Now()
	return nil
}

// MarkCompleted records provider completion together with the output artifact.
func (b *AnalysisBatch) MarkCompleted(outputFileID string) error {
	if outputFileID == "" {
		return ErrEmptyOutputFile
	}
	if b.providerStatus.IsTerminal() {
		return ErrBatchNotOpen
	}
	b.providerStatus = valueobject.BatchStatusCompleted
	b.outputFileID = &outputFileID
	b.updatedAt = time.Now()
	return nil
}
