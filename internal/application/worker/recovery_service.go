package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/application/common/slogger"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/domain/analysis"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/domain/valueobject"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/port/outbound"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const manifestFileName = "manifest.yaml"

// RecoveryOptions controls one recovery run.
type RecoveryOptions struct {
	// Window bounds how far back provider batches are listed. Zero means
	// every batch the provider still knows about.
	Window time.Duration
	// Year, when non-zero, restricts recovery to batches created in that
	// calendar year (UTC).
	Year int
	// BatchRefs, when set, names the exact batches to recover and skips the
	// provider listing.
	BatchRefs []string
	// Limit caps how many provider batches are examined.
	Limit int
	// BatchDir, when set, is where output files and the manifest are kept so
	// a later run can re-ingest without re-downloading.
	BatchDir string
	// SkipDownload ingests from files already present in BatchDir.
	SkipDownload bool
	// DryRun reports what would be ingested without writing any state.
	DryRun bool
}

// RecoveryReport summarizes one recovery run.
type RecoveryReport struct {
	Examined int
	Ingested int
	Skipped  int
	Stats    IngestStats
}

// Manifest records which batch outputs were downloaded into a batch
// directory, so --skip-download runs can work offline.
type Manifest struct {
	GeneratedAt time.Time       `yaml:"generated_at"`
	Batches     []ManifestEntry `yaml:"batches"`
}

// ManifestEntry is one downloaded batch output in the manifest.
type ManifestEntry struct {
	BatchRef     string `yaml:"batch_ref"`
	Status       string `yaml:"status"`
	OutputFileID string `yaml:"output_file_id"`
	OutputPath   string `yaml:"output_path"`
}

// RecoveryService rebuilds document state from the provider's batch listing
// after local tracking state has been lost. Recovered results land on any
// existing document that is not already completed, whatever batch the local
// store last knew it under; documents are never created and only analysis
// fields ever change.
type RecoveryService struct {
	documentRepo outbound.DocumentRepository
	batchRepo    outbound.BatchRepository
	client       outbound.BatchInferenceClient
	ingestor     *ResultIngestor
	metrics      *PipelineMetrics

	// now is swappable in tests.
	now func() time.Time
}

// NewRecoveryService creates a recovery service.
func NewRecoveryService(
	documentRepo outbound.DocumentRepository,
	batchRepo outbound.BatchRepository,
	client outbound.BatchInferenceClient,
	ingestor *ResultIngestor,
	metrics *PipelineMetrics,
) *RecoveryService {
	return &RecoveryService{
		documentRepo: documentRepo,
		batchRepo:    batchRepo,
		client:       client,
		ingestor:     ingestor,
		metrics:      metrics,
		now:          time.Now,
	}
}

// Run executes one recovery pass over provider-side batches.
func (r *RecoveryService) Run(ctx context.Context, opts RecoveryOptions) (RecoveryReport, error) {
	var report RecoveryReport

	candidates, err := r.collectCandidates(ctx, opts)
	if err != nil {
		return report, err
	}
	report.Examined = len(candidates)

	var manifest Manifest
	if opts.SkipDownload {
		loaded, loadErr := loadManifest(opts.BatchDir)
		if loadErr != nil {
			return report, loadErr
		}
		manifest = loaded
	}

	for _, batch := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if batch.Status != "completed" || batch.OutputFileID == "" {
			report.Skipped++
			slogger.Debug(ctx, "Skipping batch without ingestable output", slogger.Fields{
				"batch_ref": batch.BatchRef,
				"status":    batch.Status.String(),
			})
			continue
		}

		stats, ingestErr := r.recoverBatch(ctx, batch, opts, &manifest)
		if ingestErr != nil {
			slogger.Error(ctx, "Failed to recover batch", slogger.Fields{
				"batch_ref": batch.BatchRef,
				"error":     ingestErr.Error(),
			})
			report.Skipped++
			continue
		}

		report.Ingested++
		report.Stats.Completed += stats.Completed
		report.Stats.Failed += stats.Failed
		report.Stats.Stale += stats.Stale
		report.Stats.Malformed += stats.Malformed
	}

	// Written on dry runs too: the cached outputs are only usable by a later
	// --skip-download run if the manifest names them.
	if opts.BatchDir != "" && !opts.SkipDownload {
		if err := writeManifest(opts.BatchDir, manifest, r.now()); err != nil {
			return report, err
		}
	}

	slogger.Info(ctx, "Recovery run finished", slogger.Fields{
		"examined":  report.Examined,
		"ingested":  report.Ingested,
		"skipped":   report.Skipped,
		"completed": report.Stats.Completed,
		"failed":    report.Stats.Failed,
		"stale":     report.Stats.Stale,
		"dry_run":   opts.DryRun,
	})

	return report, nil
}

// collectCandidates resolves the batch set to examine, either the explicit
// refs or a windowed walk of the provider listing (newest first).
func (r *RecoveryService) collectCandidates(ctx context.Context, opts RecoveryOptions) ([]*outbound.ProviderBatch, error) {
	if len(opts.BatchRefs) > 0 {
		batches := make([]*outbound.ProviderBatch, 0, len(opts.BatchRefs))
		for _, ref := range opts.BatchRefs {
			batch, err := r.client.GetBatch(ctx, ref)
			if err != nil {
				return nil, fmt.Errorf("failed to fetch batch %s: %w", ref, err)
			}
			batches = append(batches, batch)
		}
		return batches, nil
	}

	var cutoff time.Time
	if opts.Window > 0 {
		cutoff = r.now().Add(-opts.Window)
	}
	if opts.Year > 0 {
		yearStart := time.Date(opts.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
		if cutoff.IsZero() || yearStart.After(cutoff) {
			cutoff = yearStart
		}
	}

	var batches []*outbound.ProviderBatch
	cursor := ""
	for {
		page, next, err := r.client.ListBatches(ctx, cursor, 100)
		if err != nil {
			return nil, fmt.Errorf("failed to list provider batches: %w", err)
		}

		for _, batch := range page {
			// The listing is newest first, so the first batch older than the
			// cutoff ends the walk.
			if !cutoff.IsZero() && batch.CreatedAt.Before(cutoff) {
				return batches, nil
			}
			if opts.Year > 0 && batch.CreatedAt.UTC().Year() != opts.Year {
				continue
			}
			batches = append(batches, batch)
			if opts.Limit > 0 && len(batches) >= opts.Limit {
				return batches, nil
			}
		}

		if next == "" {
			return batches, nil
		}
		cursor = next
	}
}

// recoverBatch obtains the output stream for one batch and either counts it
// (dry run) or applies it idempotently.
func (r *RecoveryService) recoverBatch(
	ctx context.Context,
	batch *outbound.ProviderBatch,
	opts RecoveryOptions,
	manifest *Manifest,
) (IngestStats, error) {
	body, err := r.openOutput(ctx, batch, opts, manifest)
	if err != nil {
		return IngestStats{}, err
	}
	defer body.Close()

	if opts.DryRun {
		return r.dryRunScan(ctx, batch.BatchRef, body)
	}

	stats, err := r.ingestor.IngestStreamRecovered(ctx, batch.BatchRef, body)
	if err != nil {
		return stats, err
	}

	// Restore the claim invariant for members the output never answered.
	requeued, err := r.documentRepo.RequeueBatch(ctx, batch.BatchRef)
	if err != nil {
		return stats, fmt.Errorf("failed to requeue unanswered documents: %w", err)
	}
	if requeued > 0 {
		r.metrics.RecordRequeued(ctx, requeued)
	}

	// The local tracking row, if any survived, is now fully reconciled.
	if err := r.batchRepo.Archive(ctx, batch.BatchRef); err != nil {
		slogger.Warn(ctx, "Failed to archive recovered batch row", slogger.Fields{
			"batch_ref": batch.BatchRef,
			"error":     err.Error(),
		})
	}

	return stats, nil
}

// openOutput returns the output stream for a batch, from the batch directory
// when possible, downloading (and caching) otherwise.
func (r *RecoveryService) openOutput(
	ctx context.Context,
	batch *outbound.ProviderBatch,
	opts RecoveryOptions,
	manifest *Manifest,
) (io.ReadCloser, error) {
	if opts.SkipDownload {
		entry := manifest.find(batch.BatchRef)
		if entry == nil {
			return nil, fmt.Errorf("batch %s is not in the manifest; run without --skip-download first", batch.BatchRef)
		}
		file, err := os.Open(filepath.Join(opts.BatchDir, entry.OutputPath))
		if err != nil {
			return nil, fmt.Errorf("failed to open cached output: %w", err)
		}
		return file, nil
	}

	body, err := r.client.DownloadOutput(ctx, batch.OutputFileID)
	if err != nil {
		return nil, fmt.Errorf("failed to download output: %w", err)
	}

	if opts.BatchDir == "" {
		return body, nil
	}
	defer body.Close()

	outputPath := batch.BatchRef + ".jsonl"
	if err := saveOutputFile(filepath.Join(opts.BatchDir, outputPath), body); err != nil {
		return nil, err
	}

	manifest.Batches = append(manifest.Batches, ManifestEntry{
		BatchRef:     batch.BatchRef,
		Status:       batch.Status.String(),
		OutputFileID: batch.OutputFileID,
		OutputPath:   outputPath,
	})

	file, err := os.Open(filepath.Join(opts.BatchDir, outputPath))
	if err != nil {
		return nil, fmt.Errorf("failed to reopen downloaded output: %w", err)
	}
	return file, nil
}

func (m *Manifest) find(batchRef string) *ManifestEntry {
	for i := range m.Batches {
		if m.Batches[i].BatchRef == batchRef {
			return &m.Batches[i]
		}
	}
	return nil
}

func loadManifest(batchDir string) (Manifest, error) {
	if batchDir == "" {
		return Manifest{}, errors.New("--skip-download requires a batch directory")
	}

	data, err := os.ReadFile(filepath.Join(batchDir, manifestFileName))
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return Manifest{}, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return manifest, nil
}

func writeManifest(batchDir string, manifest Manifest, now time.Time) error {
	if len(manifest.Batches) == 0 {
		return nil
	}
	manifest.GeneratedAt = now.UTC()

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(batchDir, manifestFileName), data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

func saveOutputFile(path string, body io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create batch directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, body); err != nil {
		return fmt.Errorf("failed to save output file: %w", err)
	}
	return nil
}

// dryRunScan parses an output stream and reports exactly which documents a
// real run would change, consulting current document state without mutating
// anything. Classification mirrors the recovery ingestion path: successes
// land on any non-completed document, failures only on documents still
// claimed under the recovered batch.
func (r *RecoveryService) dryRunScan(ctx context.Context, batchRef string, body io.Reader) (IngestStats, error) {
	var stats IngestStats
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxOutputLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		record := analysis.ParseRecord(line)
		if record.CustomID == uuid.Nil {
			stats.Malformed++
			continue
		}

		doc, err := r.documentRepo.FindByID(ctx, record.CustomID)
		if err != nil {
			return stats, fmt.Errorf("failed to look up document %s: %w", record.CustomID, err)
		}

		switch {
		case doc == nil || doc.Status() == valueobject.DocumentStatusCompleted:
			// Missing or already applied: a real run changes nothing.
			stats.Stale++
		case record.IsSuccess():
			stats.Completed++
		case doc.Status() == valueobject.DocumentStatusClaimed &&
			doc.BatchRef() != nil && *doc.BatchRef() == batchRef:
			stats.Failed++
		default:
			stats.Stale++
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("failed to scan output: %w", err)
	}
	return stats, nil
}
