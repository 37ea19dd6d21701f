package worker

import (
	"context"
	"io"
	"time"

	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/domain/entity"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/domain/valueobject"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/port/outbound"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockDocumentRepository is a testify mock for outbound.DocumentRepository.
type MockDocumentRepository struct {
	mock.Mock
}

func (m *MockDocumentRepository) Save(ctx context.Context, doc *entity.Document) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *MockDocumentRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Document), args.Error(1)
}

func (m *MockDocumentRepository) Claim(ctx context.Context, limit int) ([]*entity.Document, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.Document), args.Error(1)
}

func (m *MockDocumentRepository) AttachBatch(ctx context.Context, documentIDs []uuid.UUID, batchRef string) ([]uuid.UUID, error) {
	args := m.Called(ctx, documentIDs, batchRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockDocumentRepository) CompleteOne(ctx context.Context, documentID uuid.UUID, batchRef string, mentions []outbound.MentionInput) error {
	args := m.Called(ctx, documentID, batchRef, mentions)
	return args.Error(0)
}

func (m *MockDocumentRepository) FailOne(ctx context.Context, documentID uuid.UUID, batchRef string) error {
	args := m.Called(ctx, documentID, batchRef)
	return args.Error(0)
}

func (m *MockDocumentRepository) CompleteRecovered(ctx context.Context, documentID uuid.UUID, mentions []outbound.MentionInput) error {
	args := m.Called(ctx, documentID, mentions)
	return args.Error(0)
}

func (m *MockDocumentRepository) RequeueBatch(ctx context.Context, batchRef string) (int, error) {
	args := m.Called(ctx, batchRef)
	return args.Int(0), args.Error(1)
}

func (m *MockDocumentRepository) ResetClaimed(ctx context.Context, documentIDs []uuid.UUID) (int, error) {
	args := m.Called(ctx, documentIDs)
	return args.Int(0), args.Error(1)
}

func (m *MockDocumentRepository) FindStuck(ctx context.Context, olderThan time.Duration, now time.Time) ([]*entity.Document, error) {
	args := m.Called(ctx, olderThan, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.Document), args.Error(1)
}

func (m *MockDocumentRepository) MaxAttemptCount(ctx context.Context, batchRef string) (int, error) {
	args := m.Called(ctx, batchRef)
	return args.Int(0), args.Error(1)
}

func (m *MockDocumentRepository) StatusCounts(ctx context.Context) (map[valueobject.DocumentStatus]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[valueobject.DocumentStatus]int), args.Error(1)
}

func (m *MockDocumentRepository) ResetAll(ctx context.Context, keepRecent time.Duration, keepEntities bool) (int, error) {
	args := m.Called(ctx, keepRecent, keepEntities)
	return args.Int(0), args.Error(1)
}

func (m *MockDocumentRepository) CountResetCandidates(ctx context.Context, keepRecent time.Duration) (int, error) {
	args := m.Called(ctx, keepRecent)
	return args.Int(0), args.Error(1)
}

// MockBatchRepository is a testify mock for outbound.BatchRepository.
type MockBatchRepository struct {
	mock.Mock
}

func (m *MockBatchRepository) Save(ctx context.Context, batch *entity.AnalysisBatch) error {
	args := m.Called(ctx, batch)
	return args.Error(0)
}

func (m *MockBatchRepository) FindByRef(ctx context.Context, batchRef string) (*entity.AnalysisBatch, error) {
	args := m.Called(ctx, batchRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.AnalysisBatch), args.Error(1)
}

func (m *MockBatchRepository) FindOpen(ctx context.Context) ([]*entity.AnalysisBatch, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.AnalysisBatch), args.Error(1)
}

func (m *MockBatchRepository) Update(ctx context.Context, batch *entity.AnalysisBatch) error {
	args := m.Called(ctx, batch)
	return args.Error(0)
}

func (m *MockBatchRepository) Archive(ctx context.Context, batchRef string) error {
	args := m.Called(ctx, batchRef)
	return args.Error(0)
}

// MockInferenceClient is a testify mock for outbound.BatchInferenceClient.
type MockInferenceClient struct {
	mock.Mock
}

func (m *MockInferenceClient) SubmitBatch(ctx context.Context, requests []outbound.BatchRequest) (*outbound.ProviderBatch, error) {
	args := m.Called(ctx, requests)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*outbound.ProviderBatch), args.Error(1)
}

func (m *MockInferenceClient) GetBatch(ctx context.Context, batchRef string) (*outbound.ProviderBatch, error) {
	args := m.Called(ctx, batchRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*outbound.ProviderBatch), args.Error(1)
}

func (m *MockInferenceClient) ListBatches(ctx context.Context, after string, limit int) ([]*outbound.ProviderBatch, string, error) {
	args := m.Called(ctx, after, limit)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).([]*outbound.ProviderBatch), args.String(1), args.Error(2)
}

func (m *MockInferenceClient) DownloadOutput(ctx context.Context, outputFileID string) (io.ReadCloser, error) {
	args := m.Called(ctx, outputFileID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

// MockEventPublisher is a testify mock for outbound.EventPublisher.
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishDocumentAnalyzed(ctx context.Context, documentID uuid.UUID, mentionCount int) error {
	args := m.Called(ctx, documentID, mentionCount)
	return args.Error(0)
}

func (m *MockEventPublisher) PublishDocumentFailed(ctx context.Context, documentID uuid.UUID, reason string) error {
	args := m.Called(ctx, documentID, reason)
	return args.Error(0)
}

func (m *MockEventPublisher) Close() {
	m.Called()
}

// silentPublisher is a stub publisher for tests that do not assert on events.
type silentPublisher struct{}

func (silentPublisher) PublishDocumentAnalyzed(context.Context, uuid.UUID, int) error { return nil }
func (silentPublisher) PublishDocumentFailed(context.Context, uuid.UUID, string) error {
	return nil
}
func (silentPublisher) Close() {}
