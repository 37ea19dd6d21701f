package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/application/common/slogger"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/domain/entity"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/domain/valueobject"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/port/outbound"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const documentColumns = `id, source_url, raw_text, status, batch_ref, attempt_count, created_at, updated_at, processed_at`

// PostgreSQLDocumentRepository implements the DocumentRepository interface.
// It is the only component that writes document rows; every transition is a
// single statement or a single transaction.
type PostgreSQLDocumentRepository struct {
	pool *pgxpool.Pool
	tm   *TransactionManager
}

// NewPostgreSQLDocumentRepository creates a new PostgreSQL document repository.
func NewPostgreSQLDocumentRepository(pool *pgxpool.Pool) *PostgreSQLDocumentRepository {
	return &PostgreSQLDocumentRepository{
		pool: pool,
		tm:   NewTransactionManager(pool),
	}
}

// Save persists a new document.
func (r *PostgreSQLDocumentRepository) Save(ctx context.Context, doc *entity.Document) error {
	if doc == nil {
		return ErrInvalidArgument
	}

	query := `
		INSERT INTO documents (
			id, source_url, raw_text, status, batch_ref, attempt_count,
			created_at, updated_at, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	qi := GetQueryInterface(ctx, r.pool)
	_, err := qi.Exec(ctx, query,
		doc.ID(),
		doc.SourceURL(),
		doc.RawText(),
		doc.Status().String(),
		doc.BatchRef(),
		doc.AttemptCount(),
		doc.CreatedAt(),
		doc.UpdatedAt(),
		doc.ProcessedAt(),
	)
	if err != nil {
		return WrapError(err, "save document")
	}

	return nil
}

// FindByID finds a document by its ID.
func (r *PostgreSQLDocumentRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	if id == uuid.Nil {
		return nil, ErrInvalidArgument
	}

	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`

	qi := GetQueryInterface(ctx, r.pool)
	doc, err := scanDocument(qi.QueryRow(ctx, query, id))
	if err != nil {
		if IsNotFoundError(err) {
			return nil, nil
		}
		return nil, WrapError(err, "find document by ID")
	}
	return doc, nil
}

// Claim atomically transitions up to limit pending documents to claimed.
// The inner SELECT uses FOR UPDATE SKIP LOCKED so concurrent claimers walk
// past each other's rows instead of blocking or double-claiming.
func (r *PostgreSQLDocumentRepository) Claim(ctx context.Context, limit int) ([]*entity.Document, error) {
	if limit <= 0 {
		return nil, ErrInvalidArgument
	}

	query := `
		UPDATE documents
		SET status = $1, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM documents
			WHERE status = $2
			ORDER BY created_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + documentColumns

	qi := GetQueryInterface(ctx, r.pool)
	rows, err := qi.Query(ctx, query,
		valueobject.DocumentStatusClaimed.String(),
		valueobject.DocumentStatusPending.String(),
		limit,
	)
	if err != nil {
		return nil, WrapError(err, "claim documents")
	}
	defer rows.Close()

	return collectDocuments(rows)
}

// AttachBatch sets batch_ref on claimed documents and returns the IDs that
// were actually attached. Documents that left the claimed state since the
// claim are skipped and logged, never overwritten.
func (r *PostgreSQLDocumentRepository) AttachBatch(
	ctx context.Context,
	documentIDs []uuid.UUID,
	batchRef string,
) ([]uuid.UUID, error) {
	if len(documentIDs) == 0 || batchRef == "" {
		return nil, ErrInvalidArgument
	}

	query := `
		UPDATE documents
		SET batch_ref = $1, updated_at = NOW()
		WHERE id = ANY($2) AND status = $3 AND batch_ref IS NULL
		RETURNING id`

	qi := GetQueryInterface(ctx, r.pool)
	rows, err := qi.Query(ctx, query, batchRef, documentIDs, valueobject.DocumentStatusClaimed.String())
	if err != nil {
		return nil, WrapError(err, "attach batch")
	}
	defer rows.Close()

	attached := make([]uuid.UUID, 0, len(documentIDs))
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, WrapError(err, "scan attached document id")
		}
		attached = append(attached, id)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapError(err, "iterate attached document ids")
	}

	if len(attached) < len(documentIDs) {
		slogger.Warn(ctx, "Some documents were not claimable for batch attach", slogger.Fields{
			"batch_ref": batchRef,
			"requested": len(documentIDs),
			"attached":  len(attached),
		})
	}

	return attached, nil
}

// CompleteOne writes the mention set and completes the document in a single
// transaction. Already-completed documents are a silent no-op; a mismatched
// batch_ref is reported as ErrStaleBatchRef.
func (r *PostgreSQLDocumentRepository) CompleteOne(
	ctx context.Context,
	documentID uuid.UUID,
	batchRef string,
	mentions []outbound.MentionInput,
) error {
	return r.tm.WithTransaction(ctx, func(txCtx context.Context) error {
		proceed, err := r.guardTransition(txCtx, documentID, batchRef)
		if err != nil || !proceed {
			return err
		}
		return r.writeCompletion(txCtx, documentID, mentions)
	})
}

// CompleteRecovered applies a recovered result to any existing document that
// is not already completed, ignoring its current status and batch_ref. This
// is only reachable from the recovery tool; the live ingestion path always
// goes through the batch_ref guard. A missing document is never created.
func (r *PostgreSQLDocumentRepository) CompleteRecovered(
	ctx context.Context,
	documentID uuid.UUID,
	mentions []outbound.MentionInput,
) error {
	return r.tm.WithTransaction(ctx, func(txCtx context.Context) error {
		qi := GetQueryInterface(txCtx, r.pool)

		var statusStr string
		err := qi.QueryRow(txCtx, `
			SELECT status FROM documents WHERE id = $1 FOR UPDATE`,
			documentID,
		).Scan(&statusStr)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("document %s: %w", documentID, outbound.ErrDocumentNotFound)
			}
			return WrapError(err, "guard recovered completion")
		}

		if valueobject.DocumentStatus(statusStr) == valueobject.DocumentStatusCompleted {
			// The result already landed through the live path.
			return nil
		}
		return r.writeCompletion(txCtx, documentID, mentions)
	})
}

// writeCompletion stores the mention set and marks the document completed.
// Callers hold the document row lock inside an open transaction.
func (r *PostgreSQLDocumentRepository) writeCompletion(
	txCtx context.Context,
	documentID uuid.UUID,
	mentions []outbound.MentionInput,
) error {
	for _, m := range mentions {
		entityID, upsertErr := r.upsertEntity(txCtx, m.EntityName, m.EntityType)
		if upsertErr != nil {
			return upsertErr
		}
		if insertErr := r.insertMention(txCtx, documentID, entityID, m); insertErr != nil {
			return insertErr
		}
	}

	qi := GetQueryInterface(txCtx, r.pool)
	_, err := qi.Exec(txCtx, `
		UPDATE documents
		SET status = $1, batch_ref = NULL, processed_at = NOW(), updated_at = NOW()
		WHERE id = $2`,
		valueobject.DocumentStatusCompleted.String(), documentID,
	)
	if err != nil {
		return WrapError(err, "complete document")
	}
	return nil
}

// FailOne transitions the document to failed under the same batch_ref guard.
func (r *PostgreSQLDocumentRepository) FailOne(ctx context.Context, documentID uuid.UUID, batchRef string) error {
	return r.tm.WithTransaction(ctx, func(txCtx context.Context) error {
		proceed, err := r.guardTransition(txCtx, documentID, batchRef)
		if err != nil || !proceed {
			return err
		}

		qi := GetQueryInterface(txCtx, r.pool)
		_, err = qi.Exec(txCtx, `
			UPDATE documents
			SET status = $1, batch_ref = NULL, attempt_count = attempt_count + 1, updated_at = NOW()
			WHERE id = $2`,
			valueobject.DocumentStatusFailed.String(), documentID,
		)
		if err != nil {
			return WrapError(err, "fail document")
		}
		return nil
	})
}

// guardTransition locks the document row and decides whether a completion or
// failure write may proceed. Returns (false, nil) for the idempotent no-op
// case and ErrStaleBatchRef when the document belongs to someone else.
func (r *PostgreSQLDocumentRepository) guardTransition(
	ctx context.Context,
	documentID uuid.UUID,
	batchRef string,
) (bool, error) {
	qi := GetQueryInterface(ctx, r.pool)

	var statusStr string
	var currentRef *string
	err := qi.QueryRow(ctx, `
		SELECT status, batch_ref FROM documents WHERE id = $1 FOR UPDATE`,
		documentID,
	).Scan(&statusStr, &currentRef)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, WrapError(ErrNotFound, "guard document transition")
		}
		return false, WrapError(err, "guard document transition")
	}

	status := valueobject.DocumentStatus(statusStr)
	if status == valueobject.DocumentStatusCompleted {
		// Re-ingestion of an already applied record.
		return false, nil
	}
	if status != valueobject.DocumentStatusClaimed {
		return false, fmt.Errorf("document %s is %s, not claimed: %w",
			documentID, status, outbound.ErrStaleBatchRef)
	}
	if currentRef == nil || *currentRef != batchRef {
		got := "<nil>"
		if currentRef != nil {
			got = *currentRef
		}
		return false, fmt.Errorf("document %s is attached to batch %s, not %s: %w",
			documentID, got, batchRef, outbound.ErrStaleBatchRef)
	}

	return true, nil
}

// upsertEntity inserts or finds the entity by its case-insensitive canonical
// key, returning its ID either way.
func (r *PostgreSQLDocumentRepository) upsertEntity(ctx context.Context, name, entType string) (uuid.UUID, error) {
	qi := GetQueryInterface(ctx, r.pool)

	var id uuid.UUID
	// The no-op DO UPDATE makes RETURNING yield the existing row's id.
	err := qi.QueryRow(ctx, `
		INSERT INTO entities (id, name, type, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (lower(name), lower(type)) DO UPDATE SET name = entities.name
		RETURNING id`,
		uuid.New(), name, entType,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, WrapError(err, "upsert entity")
	}
	return id, nil
}

func (r *PostgreSQLDocumentRepository) insertMention(
	ctx context.Context,
	documentID, entityID uuid.UUID,
	m outbound.MentionInput,
) error {
	qi := GetQueryInterface(ctx, r.pool)
	_, err := qi.Exec(ctx, `
		INSERT INTO entity_mentions (
			document_id, entity_id, power_score, moral_score, context, context_hash, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (document_id, entity_id, context_hash) DO NOTHING`,
		documentID, entityID, m.PowerScore, m.MoralScore, m.Context, m.ContextHash,
	)
	if err != nil {
		return WrapError(err, "insert entity mention")
	}
	return nil
}

// RequeueBatch resets all documents attached to batchRef back to pending in
// one statement, so partial resets cannot occur.
func (r *PostgreSQLDocumentRepository) RequeueBatch(ctx context.Context, batchRef string) (int, error) {
	if batchRef == "" {
		return 0, ErrInvalidArgument
	}

	query := `
		UPDATE documents
		SET status = $1, batch_ref = NULL, attempt_count = attempt_count + 1, updated_at = NOW()
		WHERE batch_ref = $2 AND status = $3`

	qi := GetQueryInterface(ctx, r.pool)
	tag, err := qi.Exec(ctx, query,
		valueobject.DocumentStatusPending.String(),
		batchRef,
		valueobject.DocumentStatusClaimed.String(),
	)
	if err != nil {
		return 0, WrapError(err, "requeue batch")
	}

	return int(tag.RowsAffected()), nil
}

// ResetClaimed returns specific claimed, unattached documents to pending.
// This is the submitter's pre-batch failure path; no attempt is counted
// because the provider never saw the documents.
func (r *PostgreSQLDocumentRepository) ResetClaimed(ctx context.Context, documentIDs []uuid.UUID) (int, error) {
	if len(documentIDs) == 0 {
		return 0, nil
	}

	query := `
		UPDATE documents
		SET status = $1, updated_at = NOW()
		WHERE id = ANY($2) AND status = $3 AND batch_ref IS NULL`

	qi := GetQueryInterface(ctx, r.pool)
	tag, err := qi.Exec(ctx, query,
		valueobject.DocumentStatusPending.String(),
		documentIDs,
		valueobject.DocumentStatusClaimed.String(),
	)
	if err != nil {
		return 0, WrapError(err, "reset claimed documents")
	}

	return int(tag.RowsAffected()), nil
}

// FindStuck returns claimed documents that have not been touched since
// now - olderThan, regardless of their last known provider state.
func (r *PostgreSQLDocumentRepository) FindStuck(
	ctx context.Context,
	olderThan time.Duration,
	now time.Time,
) ([]*entity.Document, error) {
	cutoff := now.Add(-olderThan)

	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at`

	qi := GetQueryInterface(ctx, r.pool)
	rows, err := qi.Query(ctx, query, valueobject.DocumentStatusClaimed.String(), cutoff)
	if err != nil {
		return nil, WrapError(err, "find stuck documents")
	}
	defer rows.Close()

	return collectDocuments(rows)
}

// MaxAttemptCount returns the highest attempt_count among documents attached
// to batchRef.
func (r *PostgreSQLDocumentRepository) MaxAttemptCount(ctx context.Context, batchRef string) (int, error) {
	qi := GetQueryInterface(ctx, r.pool)

	var maxAttempts int
	err := qi.QueryRow(ctx, `
		SELECT COALESCE(MAX(attempt_count), 0) FROM documents WHERE batch_ref = $1`,
		batchRef,
	).Scan(&maxAttempts)
	if err != nil {
		return 0, WrapError(err, "max attempt count")
	}
	return maxAttempts, nil
}

// StatusCounts returns document counts per status.
func (r *PostgreSQLDocumentRepository) StatusCounts(ctx context.Context) (map[valueobject.DocumentStatus]int, error) {
	qi := GetQueryInterface(ctx, r.pool)

	rows, err := qi.Query(ctx, `SELECT status, COUNT(*) FROM documents GROUP BY status`)
	if err != nil {
		return nil, WrapError(err, "status counts")
	}
	defer rows.Close()

	counts := make(map[valueobject.DocumentStatus]int)
	for rows.Next() {
		var statusStr string
		var count int
		if err := rows.Scan(&statusStr, &count); err != nil {
			return nil, WrapError(err, "scan status count")
		}
		status, parseErr := valueobject.NewDocumentStatus(statusStr)
		if parseErr != nil {
			return nil, parseErr
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, WrapError(err, "iterate status counts")
	}

	return counts, nil
}

// ResetAll is the operator bulk reset. Every document outside the keepRecent
// window returns to pending with a cleared batch_ref and attempt count.
// Unless keepEntities is set, the reset documents' mentions are purged in the
// same transaction, along with entities left without any mention.
func (r *PostgreSQLDocumentRepository) ResetAll(ctx context.Context, keepRecent time.Duration, keepEntities bool) (int, error) {
	cutoff := time.Now().Add(-keepRecent)

	var count int
	err := r.tm.WithTransaction(ctx, func(txCtx context.Context) error {
		qi := GetQueryInterface(txCtx, r.pool)

		rows, err := qi.Query(txCtx, `
			UPDATE documents
			SET status = $1, batch_ref = NULL, attempt_count = 0,
				processed_at = NULL, updated_at = NOW()
			WHERE updated_at < $2
			RETURNING id`,
			valueobject.DocumentStatusPending.String(), cutoff,
		)
		if err != nil {
			return WrapError(err, "bulk reset documents")
		}
		var ids []uuid.UUID
		for rows.Next() {
			var id uuid.UUID
			if scanErr := rows.Scan(&id); scanErr != nil {
				rows.Close()
				return WrapError(scanErr, "scan reset document id")
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return WrapError(err, "iterate reset document ids")
		}
		count = len(ids)

		if keepEntities || len(ids) == 0 {
			return nil
		}

		if _, err := qi.Exec(txCtx,
			`DELETE FROM entity_mentions WHERE document_id = ANY($1)`, ids,
		); err != nil {
			return WrapError(err, "purge mentions of reset documents")
		}
		if _, err := qi.Exec(txCtx, `
			DELETE FROM entities e
			WHERE NOT EXISTS (
				SELECT 1 FROM entity_mentions m WHERE m.entity_id = e.id
			)`,
		); err != nil {
			return WrapError(err, "purge orphaned entities")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return count, nil
}

// CountResetCandidates mirrors ResetAll's WHERE clause so dry runs report the
// exact number of rows a reset would touch.
func (r *PostgreSQLDocumentRepository) CountResetCandidates(ctx context.Context, keepRecent time.Duration) (int, error) {
	cutoff := time.Now().Add(-keepRecent)

	qi := GetQueryInterface(ctx, r.pool)

	var count int
	err := qi.QueryRow(ctx,
		`SELECT COUNT(*) FROM documents WHERE updated_at < $1`, cutoff,
	).Scan(&count)
	if err != nil {
		return 0, WrapError(err, "count reset candidates")
	}
	return count, nil
}

// scanDocument converts one row into a Document entity.
func scanDocument(row pgx.Row) (*entity.Document, error) {
	var id uuid.UUID
	var sourceURL, rawText, statusStr string
	var batchRef *string
	var attemptCount int
	var createdAt, updatedAt time.Time
	var processedAt *time.Time

	err := row.Scan(&id, &sourceURL, &rawText, &statusStr, &batchRef,
		&attemptCount, &createdAt, &updatedAt, &processedAt)
	if err != nil {
		return nil, err
	}

	status, err := valueobject.NewDocumentStatus(statusStr)
	if err != nil {
		return nil, fmt.Errorf("invalid document status: %w", err)
	}

	return entity.RestoreDocument(id, sourceURL, rawText, status, batchRef,
		attemptCount, createdAt, updatedAt, processedAt), nil
}

func collectDocuments(rows pgx.Rows) ([]*entity.Document, error) {
	var docs []*entity.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, WrapError(err, "scan document row")
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapError(err, "iterate document rows")
	}
	return docs, nil
}
