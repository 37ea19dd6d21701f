package outbound

import (
	"context"
	"errors"
	"time"

	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/domain/entity"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/domain/valueobject"

	"github.com/google/uuid"
)

// ErrDocumentNotFound is returned when a write names a document that does not
// exist. Recovery treats it as a skip; results never create document rows.
var ErrDocumentNotFound = errors.New("document does not exist")

// DocumentRepository is the single owner of document state. Every status
// transition goes through one of these methods as an atomic statement or a
// single transaction; no other component mutates document rows.
type DocumentRepository interface {
	// Save persists a new document in pending status.
	Save(ctx context.Context, doc *entity.Document) error

	// FindByID retrieves a document by its ID, nil when absent.
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Document, error)

	// Claim atomically transitions up to limit pending documents to claimed
	// and returns them. Concurrent callers never receive overlapping
	// documents (FOR UPDATE SKIP LOCKED). Returns fewer than limit if the
	// pending pool is small; never blocks waiting for more.
	Claim(ctx context.Context, limit int) ([]*entity.Document, error)

	// AttachBatch sets batch_ref on the given claimed documents once the
	// provider has accepted the batch, returning the IDs actually attached.
	// Documents no longer claimed are skipped, never overwritten.
	AttachBatch(ctx context.Context, documentIDs []uuid.UUID, batchRef string) ([]uuid.UUID, error)

	// CompleteOne, in one transaction, verifies the document is claimed
	// under batchRef, writes the mention set with entity upserts, and
	// transitions to completed. An already-completed document is a silent
	// no-op. A claimed document under a different batch_ref returns
	// ErrStaleBatchRef.
	CompleteOne(ctx context.Context, documentID uuid.UUID, batchRef string, mentions []MentionInput) error

	// FailOne transitions the document to failed under the same batch_ref
	// guard and increments its attempt count.
	FailOne(ctx context.Context, documentID uuid.UUID, batchRef string) error

	// CompleteRecovered is the recovery-mode completion: it applies a result
	// to any existing document that is not already completed, regardless of
	// its current status or batch_ref. Already-completed documents are a
	// silent no-op; a missing document returns ErrDocumentNotFound and is
	// never created. Only analysis fields change.
	CompleteRecovered(ctx context.Context, documentID uuid.UUID, mentions []MentionInput) error

	// RequeueBatch resets every document attached to batchRef back to
	// pending in a single transaction, clearing batch_ref. Returns the
	// number of documents requeued.
	RequeueBatch(ctx context.Context, batchRef string) (int, error)

	// ResetClaimed returns specific claimed documents to pending. Used only
	// by the submitter when submission failed before any batch existed.
	ResetClaimed(ctx context.Context, documentIDs []uuid.UUID) (int, error)

	// FindStuck returns claimed documents whose updated_at is older than
	// now minus olderThan, regardless of last known provider state.
	FindStuck(ctx context.Context, olderThan time.Duration, now time.Time) ([]*entity.Document, error)

	// MaxAttemptCount returns the highest attempt_count among documents
	// attached to batchRef, for retry-ceiling decisions.
	MaxAttemptCount(ctx context.Context, batchRef string) (int, error)

	// StatusCounts returns document counts per status for reporting.
	StatusCounts(ctx context.Context) (map[valueobject.DocumentStatus]int, error)

	// ResetAll is the operator bulk reset: returns documents to pending with
	// cleared batch_ref and attempt count so the pipeline re-analyzes them.
	// When keepRecent > 0, documents updated within that window are
	// untouched. Unless keepEntities is set, stored mentions of the reset
	// documents are purged (with orphaned entities) in the same transaction.
	ResetAll(ctx context.Context, keepRecent time.Duration, keepEntities bool) (int, error)

	// CountResetCandidates returns how many documents ResetAll would touch
	// with the same keepRecent window, for exact dry-run reporting.
	CountResetCandidates(ctx context.Context, keepRecent time.Duration) (int, error)
}

// MentionInput is the write-model for one entity mention, carried from the
// ingestor into the CompleteOne transaction.
type MentionInput struct {
	EntityName  string
	EntityType  string
	PowerScore  float64
	MoralScore  float64
	Context     string
	ContextHash string
}

// BatchRepository persists local tracking state for provider batches.
type BatchRepository interface {
	// Save persists a new batch record with its member document IDs.
	Save(ctx context.Context, batch *entity.AnalysisBatch) error

	// FindByRef retrieves a batch by provider reference, nil when absent.
	FindByRef(ctx context.Context, batchRef string) (*entity.AnalysisBatch, error)

	// FindOpen returns all batches with a non-terminal provider status in
	// ascending created_at order, so older work is recovered first.
	FindOpen(ctx context.Context) ([]*entity.AnalysisBatch, error)

	// Update persists status and output artifact changes.
	Update(ctx context.Context, batch *entity.AnalysisBatch) error

	// Archive removes a fully reconciled batch from the open set.
	Archive(ctx context.Context, batchRef string) error
}

// EntityRepository reads persisted entities; writes happen inside the
// CompleteOne transaction owned by DocumentRepository.
type EntityRepository interface {
	// FindByCanonicalKey retrieves an entity by case-insensitive (name, type).
	FindByCanonicalKey(ctx context.Context, name, entType string) (*entity.NamedEntity, error)

	// MentionCount returns the number of stored mentions for a document.
	MentionCount(ctx context.Context, documentID uuid.UUID) (int, error)

	// Totals returns the overall entity and mention counts for reporting.
	Totals(ctx context.Context) (entities, mentions int, err error)
}
