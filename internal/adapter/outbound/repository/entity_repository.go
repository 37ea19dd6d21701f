package repository

import (
	"context"
	"strings"
	"time"

	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQLEntityRepository implements the EntityRepository interface. It is
// read-only; entity and mention writes happen inside the document completion
// transaction.
type PostgreSQLEntityRepository struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLEntityRepository creates a new PostgreSQL entity repository.
func NewPostgreSQLEntityRepository(pool *pgxpool.Pool) *PostgreSQLEntityRepository {
	return &PostgreSQLEntityRepository{pool: pool}
}

// FindByCanonicalKey retrieves an entity by its case-insensitive (name, type)
// pair, nil when absent.
func (r *PostgreSQLEntityRepository) FindByCanonicalKey(
	ctx context.Context,
	name, entType string,
) (*entity.NamedEntity, error) {
	name = strings.TrimSpace(name)
	entType = strings.TrimSpace(entType)
	if name == "" || entType == "" {
		return nil, ErrInvalidArgument
	}

	query := `
		SELECT id, name, type, created_at
		FROM entities
		WHERE lower(name) = lower($1) AND lower(type) = lower($2)`

	qi := GetQueryInterface(ctx, r.pool)

	var id uuid.UUID
	var storedName, storedType string
	var createdAt time.Time
	err := qi.QueryRow(ctx, query, name, entType).Scan(&id, &storedName, &storedType, &createdAt)
	if err != nil {
		if IsNotFoundError(err) {
			return nil, nil
		}
		return nil, WrapError(err, "find entity by canonical key")
	}

	return entity.RestoreNamedEntity(id, storedName, storedType, createdAt), nil
}

// MentionCount returns the number of stored mentions for a document.
func (r *PostgreSQLEntityRepository) MentionCount(ctx context.Context, documentID uuid.UUID) (int, error) {
	if documentID == uuid.Nil {
		return 0, ErrInvalidArgument
	}

	qi := GetQueryInterface(ctx, r.pool)

	var count int
	err := qi.QueryRow(ctx,
		`SELECT COUNT(*) FROM entity_mentions WHERE document_id = $1`,
		documentID,
	).Scan(&count)
	if err != nil {
		return 0, WrapError(err, "count mentions")
	}

	return count, nil
}

// Totals returns the overall entity and mention counts.
func (r *PostgreSQLEntityRepository) Totals(ctx context.Context) (int, int, error) {
	qi := GetQueryInterface(ctx, r.pool)

	var entities, mentions int
	err := qi.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM entities),
			(SELECT COUNT(*) FROM entity_mentions)`,
	).Scan(&entities, &mentions)
	if err != nil {
		return 0, 0, WrapError(err, "count entities and mentions")
	}
	return entities, mentions, nil
}
