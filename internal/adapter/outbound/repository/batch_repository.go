package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/domain/entity"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/domain/valueobject"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const batchColumns = `batch_ref, provider_status, document_ids, input_file_id, output_file_id, created_at, updated_at`

// PostgreSQLBatchRepository implements the BatchRepository interface.
type PostgreSQLBatchRepository struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLBatchRepository creates a new PostgreSQL batch repository.
func NewPostgreSQLBatchRepository(pool *pgxpool.Pool) *PostgreSQLBatchRepository {
	return &PostgreSQLBatchRepository{pool: pool}
}

// Save persists a new batch record.
func (r *PostgreSQLBatchRepository) Save(ctx context.Context, batch *entity.AnalysisBatch) error {
	if batch == nil {
		return ErrInvalidArgument
	}

	query := `
		INSERT INTO batches (
			batch_ref, provider_status, document_ids, input_file_id,
			output_file_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	qi := GetQueryInterface(ctx, r.pool)
	_, err := qi.Exec(ctx, query,
		batch.BatchRef(),
		batch.ProviderStatus().String(),
		batch.DocumentIDs(),
		batch.InputFileID(),
		batch.OutputFileID(),
		batch.CreatedAt(),
		batch.UpdatedAt(),
	)
	if err != nil {
		return WrapError(err, "save batch")
	}

	return nil
}

// FindByRef retrieves a batch by its provider reference, nil when absent.
func (r *PostgreSQLBatchRepository) FindByRef(ctx context.Context, batchRef string) (*entity.AnalysisBatch, error) {
	if batchRef == "" {
		return nil, ErrInvalidArgument
	}

	query := `SELECT ` + batchColumns + ` FROM batches WHERE batch_ref = $1`

	qi := GetQueryInterface(ctx, r.pool)
	batch, err := scanBatch(qi.QueryRow(ctx, query, batchRef))
	if err != nil {
		if IsNotFoundError(err) {
			return nil, nil
		}
		return nil, WrapError(err, "find batch by ref")
	}
	return batch, nil
}

// FindOpen returns all non-terminal batches, oldest submission first.
func (r *PostgreSQLBatchRepository) FindOpen(ctx context.Context) ([]*entity.AnalysisBatch, error) {
	query := `
		SELECT ` + batchColumns + `
		FROM batches
		WHERE provider_status NOT IN ($1, $2, $3, $4)
		ORDER BY created_at`

	qi := GetQueryInterface(ctx, r.pool)
	rows, err := qi.Query(ctx, query,
		valueobject.BatchStatusCompleted.String(),
		valueobject.BatchStatusFailed.String(),
		valueobject.BatchStatusExpired.String(),
		valueobject.BatchStatusCancelled.String(),
	)
	if err != nil {
		return nil, WrapError(err, "find open batches")
	}
	defer rows.Close()

	var batches []*entity.AnalysisBatch
	for rows.Next() {
		batch, scanErr := scanBatch(rows)
		if scanErr != nil {
			return nil, WrapError(scanErr, "scan batch row")
		}
		batches = append(batches, batch)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapError(err, "iterate batch rows")
	}

	return batches, nil
}

// Update persists status and output artifact changes.
func (r *PostgreSQLBatchRepository) Update(ctx context.Context, batch *entity.AnalysisBatch) error {
	if batch == nil {
		return ErrInvalidArgument
	}

	query := `
		UPDATE batches
		SET provider_status = $1, output_file_id = $2, updated_at = $3
		WHERE batch_ref = $4`

	qi := GetQueryInterface(ctx, r.pool)
	tag, err := qi.Exec(ctx, query,
		batch.ProviderStatus().String(),
		batch.OutputFileID(),
		batch.UpdatedAt(),
		batch.BatchRef(),
	)
	if err != nil {
		return WrapError(err, "update batch")
	}
	if tag.RowsAffected() == 0 {
		return WrapError(ErrNotFound, "update batch")
	}

	return nil
}

// Archive removes a fully reconciled batch from the tracking table. The
// document rows carry the durable outcome; the batch row is pure bookkeeping.
func (r *PostgreSQLBatchRepository) Archive(ctx context.Context, batchRef string) error {
	if batchRef == "" {
		return ErrInvalidArgument
	}

	qi := GetQueryInterface(ctx, r.pool)
	_, err := qi.Exec(ctx, `DELETE FROM batches WHERE batch_ref = $1`, batchRef)
	if err != nil {
		return WrapError(err, "archive batch")
	}

	return nil
}

func scanBatch(row pgx.Row) (*entity.AnalysisBatch, error) {
	var batchRef, statusStr, inputFileID string
	var outputFileID *string
	var documentIDs []uuid.UUID
	var createdAt, updatedAt time.Time

	err := row.Scan(&batchRef, &statusStr, &documentIDs, &inputFileID,
		&outputFileID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	status, err := valueobject.NewBatchStatus(statusStr)
	if err != nil {
		return nil, fmt.Errorf("invalid batch status: %w", err)
	}

	return entity.RestoreAnalysisBatch(batchRef, status, documentIDs,
		inputFileID, outputFileID, createdAt, updatedAt), nil
}
