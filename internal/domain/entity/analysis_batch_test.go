package entity

import (
	"testing"

	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/domain/valueobject"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAnalysisBatch(t *testing.T) {
	docIDs := []uuid.UUID{uuid.New(), uuid.New()}

	batch, err := NewAnalysisBatch("batch_abc", "file-in", docIDs)
	require.NoError(t, err)

	assert.Equal(t, "batch_abc", batch.BatchRef())
	assert.Equal(t, valueobject.BatchStatusValidating, batch.ProviderStatus())
	assert.Equal(t, docIDs, batch.DocumentIDs())
	assert.Equal(t, "file-in", batch.InputFileID())
	assert.Nil(t, batch.OutputFileID())
	assert.True(t, batch.IsOpen())
}

func TestNewAnalysisBatch_Validation(t *testing.T) {
	docIDs := []uuid.UUID{uuid.New()}

	_, err := NewAnalysisBatch("", "file-in", docIDs)
	assert.ErrorIs(t, err, ErrEmptyBatchRef)

	_, err = NewAnalysisBatch("batch_abc", "", docIDs)
	assert.ErrorIs(t, err, ErrEmptyInputFile)

	_, err = NewAnalysisBatch("batch_abc", "file-in", nil)
	assert.ErrorIs(t, err, ErrEmptyMemberSet)
}

func TestAnalysisBatch_MarkStatus(t *testing.T) {
	batch, err := NewAnalysisBatch("batch_abc", "file-in", []uuid.UUID{uuid.New()})
	require.NoError(t, err)

	require.NoError(t, batch.MarkStatus(valueobject.BatchStatusInProgress))
	assert.Equal(t, valueobject.BatchStatusInProgress, batch.ProviderStatus())
	assert.True(t, batch.IsOpen())

	require.NoError(t, batch.MarkStatus(valueobject.BatchStatusFailed))
	assert.False(t, batch.IsOpen())

	// Terminal batches never move again.
	assert.ErrorIs(t, batch.MarkStatus(valueobject.BatchStatusInProgress), ErrBatchNotOpen)
}

func TestAnalysisBatch_MarkCompleted(t *testing.T) {
	batch, err := NewAnalysisBatch("batch_abc", "file-in", []uuid.UUID{uuid.New()})
	require.NoError(t, err)

	assert.ErrorIs(t, batch.MarkCompleted(""), ErrEmptyOutputFile)

	require.NoError(t, batch.MarkCompleted("file-out"))
	assert.Equal(t, valueobject.BatchStatusCompleted, batch.ProviderStatus())
	require.NotNil(t, batch.OutputFileID())
	assert.Equal(t, "file-out", *batch.OutputFileID())
	assert.False(t, batch.IsOpen())

	assert.ErrorIs(t, batch.MarkCompleted("file-out"), ErrBatchNotOpen)
}
