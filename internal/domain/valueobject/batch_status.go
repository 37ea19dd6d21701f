package valueobject

import "fmt"

// BatchStatus represents the provider-reported status of an inference batch.
// The values mirror the OpenAI Batch API status strings exactly so a status
// returned by the provider can be stored and compared without translation.
type BatchStatus string

// Provider batch status constants.
const (
	BatchStatusValidating BatchStatus = "validating"
	BatchStatusInProgress BatchStatus = "in_progress"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
	BatchStatusExpired    BatchStatus = "expired"
	BatchStatusCancelled  BatchStatus = "cancelled"
)

// validBatchStatuses contains all valid provider batch statuses.
var validBatchStatuses = map[BatchStatus]bool{
	BatchStatusValidating: true,
	BatchStatusInProgress: true,
	BatchStatusCompleted:  true,
	BatchStatusFailed:     true,
	BatchStatusExpired:    true,
	BatchStatusCancelled:  true,
}

// NewBatchStatus creates a new BatchStatus with validation.
func NewBatchStatus(status string) (BatchStatus, error) {
	s := BatchStatus(status)
	if !validBatchStatuses[s] {
		return "", fmt.Errorf("invalid batch status: %s", status)
	}
	return s, nil
}

// String returns the string representation of the status.
func (s BatchStatus) String() string {
	return string(s)
}

// IsTerminal returns true when the provider will never change this status again.
func (s BatchStatus) IsTerminal() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusFailed, BatchStatusExpired, BatchStatusCancelled:
		return true
	case BatchStatusValidating, BatchStatusInProgress:
		return false
	default:
		return false
	}
}

// IsFailure returns true for terminal statuses whose member documents must be
// requeued or failed.
func (s BatchStatus) IsFailure() bool {
	switch s {
	case BatchStatusFailed, BatchStatusExpired, BatchStatusCancelled:
		return true
	case BatchStatusValidating, BatchStatusInProgress, BatchStatusCompleted:
		return false
	default:
		return false
	}
}
