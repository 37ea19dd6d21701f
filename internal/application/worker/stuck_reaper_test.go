package worker

import (
	"context"
	"testing"
	"time"

	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/domain/entity"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/domain/valueobject"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/port/outbound"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func stuckDocument(t *testing.T, batchRef *string) *entity.Document {
	t.Helper()
	old := time.Now().Add(-48 * time.Hour)
	return entity.RestoreDocument(
		uuid.New(),
		"https://news.example/"+uuid.NewString(),
		"stale article",
		valueobject.DocumentStatusClaimed,
		batchRef,
		1,
		old, old, nil,
	)
}

func newTestReaper(docRepo *MockDocumentRepository, batchRepo *MockBatchRepository, client *MockInferenceClient) *StuckDocumentReaper {
	return NewStuckDocumentReaper(docRepo, batchRepo, client, nil)
}

func TestReaperRun_NothingStuck(t *testing.T) {
	ctx := context.Background()

	docRepo := new(MockDocumentRepository)
	docRepo.On("FindStuck", ctx, 24*time.Hour, mock.Anything).Return([]*entity.Document{}, nil)

	reaper := newTestReaper(docRepo, new(MockBatchRepository), new(MockInferenceClient))
	report, err := reaper.Run(ctx, 24*time.Hour, false)

	require.NoError(t, err)
	assert.Zero(t, report.Stuck)
}

func TestReaperRun_ResetsClaimsThatNeverGotABatch(t *testing.T) {
	ctx := context.Background()
	doc := stuckDocument(t, nil)

	docRepo := new(MockDocumentRepository)
	docRepo.On("FindStuck", ctx, 24*time.Hour, mock.Anything).Return([]*entity.Document{doc}, nil)
	docRepo.On("ResetClaimed", ctx, []uuid.UUID{doc.ID()}).Return(1, nil)

	reaper := newTestReaper(docRepo, new(MockBatchRepository), new(MockInferenceClient))
	report, err := reaper.Run(ctx, 24*time.Hour, false)

	require.NoError(t, err)
	assert.Equal(t, 1, report.ResetUnattached)
	docRepo.AssertExpectations(t)
}

func TestReaperRun_RequeuesWhenProviderForgotTheBatch(t *testing.T) {
	ctx := context.Background()
	batchRef := "batch_lost"
	doc := stuckDocument(t, &batchRef)

	docRepo := new(MockDocumentRepository)
	docRepo.On("FindStuck", ctx, 24*time.Hour, mock.Anything).Return([]*entity.Document{doc}, nil)
	docRepo.On("RequeueBatch", ctx, batchRef).Return(1, nil)

	client := new(MockInferenceClient)
	client.On("GetBatch", ctx, batchRef).Return(nil, &outbound.ProviderError{
		StatusCode: 404, Code: "not_found", Message: "no such batch",
	})

	batchRepo := new(MockBatchRepository)
	batchRepo.On("Archive", ctx, batchRef).Return(nil)

	reaper := newTestReaper(docRepo, batchRepo, client)
	report, err := reaper.Run(ctx, 24*time.Hour, false)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Requeued)
	docRepo.AssertExpectations(t)
}

func TestReaperRun_RequeuesEvenWhenBatchStillRunsAtProvider(t *testing.T) {
	// Age is the only criterion: a claim past the threshold is requeued even
	// when the provider still reports its batch open.
	ctx := context.Background()
	batchRef := "batch_slow"
	doc := stuckDocument(t, &batchRef)

	docRepo := new(MockDocumentRepository)
	docRepo.On("FindStuck", ctx, 24*time.Hour, mock.Anything).Return([]*entity.Document{doc}, nil)
	docRepo.On("RequeueBatch", ctx, batchRef).Return(1, nil)

	client := new(MockInferenceClient)
	client.On("GetBatch", ctx, batchRef).Return(&outbound.ProviderBatch{
		BatchRef: batchRef,
		Status:   valueobject.BatchStatusInProgress,
	}, nil)

	batchRepo := new(MockBatchRepository)
	batchRepo.On("Archive", ctx, batchRef).Return(nil)

	reaper := newTestReaper(docRepo, batchRepo, client)
	report, err := reaper.Run(ctx, 24*time.Hour, false)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Requeued)
	docRepo.AssertExpectations(t)
}

func TestReaperRun_DryRunTouchesNothing(t *testing.T) {
	ctx := context.Background()
	batchRef := "batch_done"
	attached := stuckDocument(t, &batchRef)
	unattached := stuckDocument(t, nil)

	docRepo := new(MockDocumentRepository)
	docRepo.On("FindStuck", ctx, 24*time.Hour, mock.Anything).
		Return([]*entity.Document{attached, unattached}, nil)

	client := new(MockInferenceClient)
	reaper := newTestReaper(docRepo, new(MockBatchRepository), client)
	report, err := reaper.Run(ctx, 24*time.Hour, true)

	require.NoError(t, err)
	assert.Equal(t, 2, report.Stuck)
	assert.Equal(t, 1, report.Requeued)
	assert.Equal(t, 1, report.ResetUnattached)
	docRepo.AssertNotCalled(t, "RequeueBatch", mock.Anything, mock.Anything)
	docRepo.AssertNotCalled(t, "ResetClaimed", mock.Anything, mock.Anything)
	client.AssertNotCalled(t, "GetBatch", mock.Anything, mock.Anything)
}

func TestReaperRun_ProviderErrorDoesNotBlockRequeue(t *testing.T) {
	// The provider lookup is informational. A failure to reach the provider
	// never leaves an overdue claim in place.
	ctx := context.Background()
	batchRef := "batch_unknowable"
	doc := stuckDocument(t, &batchRef)

	docRepo := new(MockDocumentRepository)
	docRepo.On("FindStuck", ctx, 24*time.Hour, mock.Anything).Return([]*entity.Document{doc}, nil)
	docRepo.On("RequeueBatch", ctx, batchRef).Return(1, nil)

	client := new(MockInferenceClient)
	client.On("GetBatch", ctx, batchRef).Return(nil, &outbound.ProviderError{
		StatusCode: 500, Message: "provider down", Retryable: true,
	})

	batchRepo := new(MockBatchRepository)
	batchRepo.On("Archive", ctx, batchRef).Return(nil)

	reaper := newTestReaper(docRepo, batchRepo, client)
	report, err := reaper.Run(ctx, 24*time.Hour, false)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Requeued)
	docRepo.AssertExpectations(t)
}
