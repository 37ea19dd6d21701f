package valueobject

import "fmt"

// DocumentStatus represents the current analysis status of a document.
type DocumentStatus string

// Document status constants.
const (
	DocumentStatusPending   DocumentStatus = "pending"
	DocumentStatusClaimed   DocumentStatus = "claimed"
	DocumentStatusCompleted DocumentStatus = "completed"
	DocumentStatusFailed    DocumentStatus = "failed"
)

// validDocumentStatuses contains all valid document statuses.
var validDocumentStatuses = map[DocumentStatus]bool{
	DocumentStatusPending:   true,
	DocumentStatusClaimed:   true,
	DocumentStatusCompleted: true,
	DocumentStatusFailed:    true,
}

// NewDocumentStatus creates a new DocumentStatus with validation.
func NewDocumentStatus(status string) (DocumentStatus, error) {
	s := DocumentStatus(status)
	if !validDocumentStatuses[s] {
		return "", fmt.Errorf("invalid document status: %s", status)
	}
	return s, nil
}

// String returns the string representation of the status.
func (s DocumentStatus) String() string {
	return string(s)
}

// IsTerminal returns true if this status represents a final state.
// Completed is permanent; failed is terminal but operator-resettable.
func (s DocumentStatus) IsTerminal() bool {
	return s == DocumentStatusCompleted || s == DocumentStatusFailed
}

// CanTransitionTo returns true if the status can transition to the target status.
func (s DocumentStatus) CanTransitionTo(target DocumentStatus) bool {
	transitions := map[DocumentStatus][]DocumentStatus{
		DocumentStatusPending: {
			DocumentStatusClaimed,
		},
		DocumentStatusClaimed: {
			DocumentStatusCompleted,
			DocumentStatusFailed,
			DocumentStatusPending, // requeue on batch failure or reap
		},
		// Completed is permanent. Failed may only be reopened by the
		// operator bulk reset, which bypasses entity transitions.
		DocumentStatusCompleted: {},
		DocumentStatusFailed:    {},
	}

	validTargets, exists := transitions[s]
	if !exists {
		return false
	}

	for _, validTarget := range validTargets {
		if target == validTarget {
			return true
		}
	}
	return false
}

// AllDocumentStatuses returns all valid document statuses.
func AllDocumentStatuses() []DocumentStatus {
	return []DocumentStatus{
		DocumentStatusPending,
		DocumentStatusClaimed,
		DocumentStatusCompleted,
		DocumentStatusFailed,
	}
}
