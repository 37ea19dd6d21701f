package worker

import (
	"context"
	"io"
	"strings"
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

func openBatch(t *testing.T, batchRef string, status valueobject.BatchStatus, documentIDs ...uuid.UUID) *entity.AnalysisBatch {
	t.Helper()
	if len(documentIDs) == 0 {
		documentIDs = []uuid.UUID{uuid.New()}
	}
	now := time.Now()
	return entity.RestoreAnalysisBatch(batchRef, status, documentIDs, "file-in", nil, now, now)
}

func newTestPoller(
	docRepo *MockDocumentRepository,
	batchRepo *MockBatchRepository,
	client *MockInferenceClient,
) *BatchPoller {
	ingestor := NewResultIngestor(docRepo, client, silentPublisher{}, nil)
	return NewBatchPoller(docRepo, batchRepo, client, ingestor, nil, BatchPollerConfig{
		PollInterval:        time.Hour,
		MaxConcurrentPolls:  2,
		MaxDocumentAttempts: 3,
	})
}

func TestPollOnce_NoOpenBatches(t *testing.T) {
	ctx := context.Background()

	batchRepo := new(MockBatchRepository)
	batchRepo.On("FindOpen", ctx).Return([]*entity.AnalysisBatch{}, nil)

	client := new(MockInferenceClient)
	poller := newTestPoller(new(MockDocumentRepository), batchRepo, client)

	require.NoError(t, poller.PollOnce(ctx))
	client.AssertNotCalled(t, "GetBatch", mock.Anything, mock.Anything)
}

func TestReconcileBatch_RecordsProgress(t *testing.T) {
	ctx := context.Background()
	batch := openBatch(t, "batch_1", valueobject.BatchStatusValidating)

	client := new(MockInferenceClient)
	client.On("GetBatch", ctx, "batch_1").Return(&outbound.ProviderBatch{
		BatchRef: "batch_1",
		Status:   valueobject.BatchStatusInProgress,
	}, nil)

	batchRepo := new(MockBatchRepository)
	batchRepo.On("Update", ctx, mock.MatchedBy(func(b *entity.AnalysisBatch) bool {
		return b.ProviderStatus() == valueobject.BatchStatusInProgress
	})).Return(nil)

	poller := newTestPoller(new(MockDocumentRepository), batchRepo, client)

	require.NoError(t, poller.reconcileBatch(ctx, batch))
	batchRepo.AssertExpectations(t)
}

func TestReconcileBatch_UnchangedStatusIsNoOp(t *testing.T) {
	ctx := context.Background()
	batch := openBatch(t, "batch_1", valueobject.BatchStatusInProgress)

	client := new(MockInferenceClient)
	client.On("GetBatch", ctx, "batch_1").Return(&outbound.ProviderBatch{
		BatchRef: "batch_1",
		Status:   valueobject.BatchStatusInProgress,
	}, nil)

	batchRepo := new(MockBatchRepository)
	poller := newTestPoller(new(MockDocumentRepository), batchRepo, client)

	require.NoError(t, poller.reconcileBatch(ctx, batch))
	batchRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestReconcileBatch_CompletedBatchIsIngestedAndArchived(t *testing.T) {
	ctx := context.Background()
	docID := uuid.New()
	batch := openBatch(t, "batch_1", valueobject.BatchStatusInProgress, docID)

	client := new(MockInferenceClient)
	client.On("GetBatch", ctx, "batch_1").Return(&outbound.ProviderBatch{
		BatchRef:     "batch_1",
		Status:       valueobject.BatchStatusCompleted,
		OutputFileID: "file-out",
	}, nil)
	line := successLine(t, docID, testEntity("Alice", 1.0, 1.0))
	client.On("DownloadOutput", ctx, "file-out").
		Return(io.NopCloser(strings.NewReader(line)), nil)

	docRepo := new(MockDocumentRepository)
	docRepo.On("CompleteOne", ctx, docID, "batch_1", mock.Anything).Return(nil)
	docRepo.On("RequeueBatch", ctx, "batch_1").Return(0, nil)

	batchRepo := new(MockBatchRepository)
	batchRepo.On("Archive", ctx, "batch_1").Return(nil)

	poller := newTestPoller(docRepo, batchRepo, client)

	require.NoError(t, poller.reconcileBatch(ctx, batch))
	docRepo.AssertExpectations(t)
	batchRepo.AssertExpectations(t)
}

func TestReconcileBatch_RequeuesUnansweredMembers(t *testing.T) {
	// The output file answers one of two documents; the other is requeued
	// instead of staying claimed forever.
	ctx := context.Background()
	answered := uuid.New()
	unanswered := uuid.New()
	batch := openBatch(t, "batch_1", valueobject.BatchStatusInProgress, answered, unanswered)

	client := new(MockInferenceClient)
	client.On("GetBatch", ctx, "batch_1").Return(&outbound.ProviderBatch{
		BatchRef:     "batch_1",
		Status:       valueobject.BatchStatusCompleted,
		OutputFileID: "file-out",
	}, nil)
	line := successLine(t, answered, testEntity("Alice", 1.0, 1.0))
	client.On("DownloadOutput", ctx, "file-out").
		Return(io.NopCloser(strings.NewReader(line)), nil)

	docRepo := new(MockDocumentRepository)
	docRepo.On("CompleteOne", ctx, answered, "batch_1", mock.Anything).Return(nil)
	docRepo.On("RequeueBatch", ctx, "batch_1").Return(1, nil)

	batchRepo := new(MockBatchRepository)
	batchRepo.On("Archive", ctx, "batch_1").Return(nil)

	poller := newTestPoller(docRepo, batchRepo, client)

	require.NoError(t, poller.reconcileBatch(ctx, batch))
	docRepo.AssertExpectations(t)
}

func TestReconcileBatch_IngestFailureLeavesBatchOpen(t *testing.T) {
	ctx := context.Background()
	batch := openBatch(t, "batch_1", valueobject.BatchStatusInProgress)

	client := new(MockInferenceClient)
	client.On("GetBatch", ctx, "batch_1").Return(&outbound.ProviderBatch{
		BatchRef:     "batch_1",
		Status:       valueobject.BatchStatusCompleted,
		OutputFileID: "file-out",
	}, nil)
	client.On("DownloadOutput", ctx, "file-out").
		Return(nil, &outbound.ProviderError{StatusCode: 500, Message: "storage hiccup"})

	batchRepo := new(MockBatchRepository)
	poller := newTestPoller(new(MockDocumentRepository), batchRepo, client)

	err := poller.reconcileBatch(ctx, batch)

	require.Error(t, err)
	batchRepo.AssertNotCalled(t, "Archive", mock.Anything, mock.Anything)
}

func TestReconcileBatch_FailedBatchRequeuesBelowCeiling(t *testing.T) {
	ctx := context.Background()
	batch := openBatch(t, "batch_1", valueobject.BatchStatusInProgress, uuid.New(), uuid.New())

	client := new(MockInferenceClient)
	client.On("GetBatch", ctx, "batch_1").Return(&outbound.ProviderBatch{
		BatchRef: "batch_1",
		Status:   valueobject.BatchStatusExpired,
	}, nil)

	docRepo := new(MockDocumentRepository)
	docRepo.On("MaxAttemptCount", ctx, "batch_1").Return(0, nil)
	docRepo.On("RequeueBatch", ctx, "batch_1").Return(2, nil)

	batchRepo := new(MockBatchRepository)
	batchRepo.On("Archive", ctx, "batch_1").Return(nil)

	poller := newTestPoller(docRepo, batchRepo, client)

	require.NoError(t, poller.reconcileBatch(ctx, batch))
	docRepo.AssertExpectations(t)
	docRepo.AssertNotCalled(t, "FailOne", mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcileBatch_FailedBatchFailsDocumentsAtCeiling(t *testing.T) {
	ctx := context.Background()
	docA := uuid.New()
	docB := uuid.New()
	batch := openBatch(t, "batch_1", valueobject.BatchStatusInProgress, docA, docB)

	client := new(MockInferenceClient)
	client.On("GetBatch", ctx, "batch_1").Return(&outbound.ProviderBatch{
		BatchRef: "batch_1",
		Status:   valueobject.BatchStatusFailed,
	}, nil)

	docRepo := new(MockDocumentRepository)
	docRepo.On("MaxAttemptCount", ctx, "batch_1").Return(2, nil)
	docRepo.On("FailOne", ctx, docA, "batch_1").Return(nil)
	docRepo.On("FailOne", ctx, docB, "batch_1").Return(nil)

	batchRepo := new(MockBatchRepository)
	batchRepo.On("Archive", ctx, "batch_1").Return(nil)

	poller := newTestPoller(docRepo, batchRepo, client)

	require.NoError(t, poller.reconcileBatch(ctx, batch))
	docRepo.AssertExpectations(t)
	docRepo.AssertNotCalled(t, "RequeueBatch", mock.Anything, mock.Anything)
}

func TestPollOnce_OneBadBatchDoesNotStopSweep(t *testing.T) {
	ctx := context.Background()
	good := openBatch(t, "batch_good", valueobject.BatchStatusValidating)
	bad := openBatch(t, "batch_bad", valueobject.BatchStatusValidating)

	batchRepo := new(MockBatchRepository)
	batchRepo.On("FindOpen", ctx).Return([]*entity.AnalysisBatch{bad, good}, nil)
	// Reconciliation runs under the errgroup's derived context, so the context
	// argument cannot be pinned to ctx here.
	batchRepo.On("Update", mock.Anything, mock.Anything).Return(nil)

	client := new(MockInferenceClient)
	client.On("GetBatch", mock.Anything, "batch_bad").Return(nil, &outbound.ProviderError{
		StatusCode: 400, Code: "invalid_request", Message: "nope",
	})
	client.On("GetBatch", mock.Anything, "batch_good").Return(&outbound.ProviderBatch{
		BatchRef: "batch_good",
		Status:   valueobject.BatchStatusInProgress,
	}, nil)

	poller := newTestPoller(new(MockDocumentRepository), batchRepo, client)

	require.NoError(t, poller.PollOnce(ctx))
	assert.Equal(t, valueobject.BatchStatusInProgress, good.ProviderStatus())
	client.AssertExpectations(t)
}
