package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/domain/entity"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/domain/valueobject"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func saveBatch(t *testing.T, repo *PostgreSQLBatchRepository, batchRef string) *entity.AnalysisBatch {
	t.Helper()
	batch, err := entity.NewAnalysisBatch(batchRef, "file-in", []uuid.UUID{uuid.New(), uuid.New()})
	require.NoError(t, err)
	require.NoError(t, repo.Save(context.Background(), batch))
	return batch
}

func TestBatchRepository_SaveAndFindByRef(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewPostgreSQLBatchRepository(pool)
	ctx := context.Background()

	saved := saveBatch(t, repo, "batch_abc")

	found, err := repo.FindByRef(ctx, "batch_abc")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "batch_abc", found.BatchRef())
	assert.Equal(t, valueobject.BatchStatusValidating, found.ProviderStatus())
	assert.ElementsMatch(t, saved.DocumentIDs(), found.DocumentIDs())
	assert.Equal(t, "file-in", found.InputFileID())
	assert.Nil(t, found.OutputFileID())
}

func TestBatchRepository_FindByRef_Missing(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewPostgreSQLBatchRepository(pool)

	found, err := repo.FindByRef(context.Background(), "batch_missing")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestBatchRepository_FindOpen(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewPostgreSQLBatchRepository(pool)
	ctx := context.Background()

	saveBatch(t, repo, "batch_open")

	closed := saveBatch(t, repo, "batch_done")
	require.NoError(t, closed.MarkCompleted("file-out"))
	require.NoError(t, repo.Update(ctx, closed))

	open, err := repo.FindOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "batch_open", open[0].BatchRef())
}

func TestBatchRepository_Update(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewPostgreSQLBatchRepository(pool)
	ctx := context.Background()

	batch := saveBatch(t, repo, "batch_abc")
	require.NoError(t, batch.MarkCompleted("file-out"))
	require.NoError(t, repo.Update(ctx, batch))

	found, err := repo.FindByRef(ctx, "batch_abc")
	require.NoError(t, err)
	assert.Equal(t, valueobject.BatchStatusCompleted, found.ProviderStatus())
	require.NotNil(t, found.OutputFileID())
	assert.Equal(t, "file-out", *found.OutputFileID())
}

func TestBatchRepository_Update_Missing(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewPostgreSQLBatchRepository(pool)

	ghost := entity.RestoreAnalysisBatch(
		"batch_ghost", valueobject.BatchStatusInProgress,
		[]uuid.UUID{uuid.New()}, "file-in", nil,
		time.Now(), time.Now(),
	)
	err := repo.Update(context.Background(), ghost)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBatchRepository_Archive(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewPostgreSQLBatchRepository(pool)
	ctx := context.Background()

	saveBatch(t, repo, "batch_abc")
	require.NoError(t, repo.Archive(ctx, "batch_abc"))

	found, err := repo.FindByRef(ctx, "batch_abc")
	require.NoError(t, err)
	assert.Nil(t, found)

	// Archiving a missing batch is a no-op.
	assert.NoError(t, repo.Archive(ctx, "batch_abc"))
}
