package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/application/common/slogger"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/domain/entity"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/port/outbound"

	"github.com/google/uuid"
)

// BatchSubmitterConfig holds configuration for batch submission.
type BatchSubmitterConfig struct {
	ClaimSize      int
	SubmitInterval time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// BatchSubmitter claims pending documents and submits them to the inference
// provider as batches. Claiming happens before submission so two submitter
// instances can never put the same document into two batches.
type BatchSubmitter struct {
	documentRepo outbound.DocumentRepository
	batchRepo    outbound.BatchRepository
	client       outbound.BatchInferenceClient
	metrics      *PipelineMetrics
	config       BatchSubmitterConfig

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	// Global backoff state, set on provider rate limits.
	globalBackoffUntil time.Time
	backoffStep        time.Duration
	globalBackoffMu    sync.RWMutex

	// now is swappable in tests.
	now func() time.Time
}

// NewBatchSubmitter creates a new batch submitter with default values applied.
func NewBatchSubmitter(
	documentRepo outbound.DocumentRepository,
	batchRepo outbound.BatchRepository,
	client outbound.BatchInferenceClient,
	metrics *PipelineMetrics,
	config BatchSubmitterConfig,
) *BatchSubmitter {
	if config.ClaimSize == 0 {
		config.ClaimSize = 50
	}
	if config.SubmitInterval == 0 {
		config.SubmitInterval = 30 * time.Second
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = 1 * time.Minute
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = 30 * time.Minute
	}

	return &BatchSubmitter{
		documentRepo: documentRepo,
		batchRepo:    batchRepo,
		client:       client,
		metrics:      metrics,
		config:       config,
		stopCh:       make(chan struct{}),
		now:          time.Now,
	}
}

// Start begins the submission loop.
func (s *BatchSubmitter) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("batch submitter is already running")
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.submissionLoop(ctx)
	}()

	return nil
}

// Stop gracefully stops the batch submitter.
func (s *BatchSubmitter) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
}

func (s *BatchSubmitter) submissionLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.SubmitInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if s.isInGlobalBackoff() {
				continue
			}
			if err := s.SubmitOnce(ctx); err != nil {
				slogger.Error(ctx, "Batch submission cycle failed", slogger.Fields{
					"error": err.Error(),
				})
			}
		}
	}
}

// SubmitOnce runs a single claim-and-submit cycle. Exposed for the CLI and
// tests; the loop calls it on every tick.
func (s *BatchSubmitter) SubmitOnce(ctx context.Context) error {
	docs, err := s.documentRepo.Claim(ctx, s.config.ClaimSize)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	s.metrics.RecordClaimed(ctx, len(docs))

	requests := make([]outbound.BatchRequest, 0, len(docs))
	ids := make([]uuid.UUID, 0, len(docs))
	for _, doc := range docs {
		requests = append(requests, outbound.BatchRequest{
			DocumentID: doc.ID(),
			Text:       doc.RawText(),
		})
		ids = append(ids, doc.ID())
	}

	providerBatch, err := s.client.SubmitBatch(ctx, requests)
	if err != nil {
		s.handleSubmissionError(ctx, err)
		// No batch exists; release the claims so another cycle retries them.
		released, resetErr := s.documentRepo.ResetClaimed(ctx, ids)
		if resetErr != nil {
			slogger.Error(ctx, "Failed to release claims after submission failure", slogger.Fields{
				"error":     resetErr.Error(),
				"documents": len(ids),
			})
			return resetErr
		}
		slogger.Warn(ctx, "Submission failed, claims released", slogger.Fields{
			"error":    err.Error(),
			"released": released,
		})
		return nil
	}

	s.resetGlobalBackoff()

	// Persist tracking state first: if the process dies between the provider
	// accepting the batch and AttachBatch, recovery finds it via the batch row
	// or the provider listing.
	batch, err := entity.NewAnalysisBatch(providerBatch.BatchRef, providerBatch.InputFileID, ids)
	if err != nil {
		return err
	}
	if err := s.batchRepo.Save(ctx, batch); err != nil {
		return err
	}

	attached, err := s.documentRepo.AttachBatch(ctx, ids, providerBatch.BatchRef)
	if err != nil {
		return err
	}

	s.metrics.RecordBatchSubmitted(ctx, len(attached))
	slogger.Info(ctx, "Submitted batch", slogger.Fields{
		"batch_ref": providerBatch.BatchRef,
		"documents": len(attached),
	})

	return nil
}

// handleSubmissionError applies global backoff on rate limits so the loop
// stops hammering the provider.
func (s *BatchSubmitter) handleSubmissionError(ctx context.Context, err error) {
	var provErr *outbound.ProviderError
	if !errors.As(err, &provErr) || !provErr.IsRateLimit() {
		return
	}

	s.globalBackoffMu.Lock()
	if s.backoffStep == 0 {
		s.backoffStep = s.config.InitialBackoff
	} else {
		s.backoffStep *= 2
		if s.backoffStep > s.config.MaxBackoff {
			s.backoffStep = s.config.MaxBackoff
		}
	}
	until := s.now().Add(s.backoffStep)
	s.globalBackoffUntil = until
	step := s.backoffStep
	s.globalBackoffMu.Unlock()

	slogger.Warn(ctx, "Rate limited, entering global backoff", slogger.Fields{
		"backoff_until":    until.Format(time.RFC3339),
		"backoff_duration": step.String(),
	})
}

func (s *BatchSubmitter) isInGlobalBackoff() bool {
	s.globalBackoffMu.RLock()
	defer s.globalBackoffMu.RUnlock()
	return s.now().Before(s.globalBackoffUntil)
}

func (s *BatchSubmitter) resetGlobalBackoff() {
	s.globalBackoffMu.Lock()
	s.globalBackoffUntil = time.Time{}
	s.backoffStep = 0
	s.globalBackoffMu.Unlock()
}
