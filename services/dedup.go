package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"casas_scrooper/dedup"
	"casas_scrooper/models"
	"casas_scrooper/storage"
)

const dedupScope = "dedup"

// CanonicalStore reads raw listings and stores canonical ones.
type CanonicalStore interface {
	ListListings(ctx context.Context, filter storage.ListingFilter) ([]*models.Listing, error)
	UpsertCanonicalListings(ctx context.Context, runID string, listings []*models.Listing) error
	PruneCanonicalListings(ctx context.Context, runID string) (int64, error)
}

// RunRecorder keeps the dedup run history and its log lines.
type RunRecorder interface {
	CreateDedupRun(run *models.DedupRun) error
	FinishDedupRun(run *models.DedupRun) error
	Log(runID string, level models.LogLevel, message, scope string) error
}

// Exporter publishes the canonical output of a run.
type Exporter interface {
	ExportCanonical(ctx context.Context, export *storage.CanonicalExport) (string, error)
}

// DedupService runs batch deduplication end to end: load, validate,
// deduplicate, persist and export. Every dependency except the deduplicator
// is optional.
type DedupService struct {
	dedup    *dedup.Deduplicator
	store    CanonicalStore
	runs     RunRecorder
	exporter Exporter
	logger   *zap.Logger
	now      func() time.Time
}

func NewDedupService(d *dedup.Deduplicator, store CanonicalStore, runs RunRecorder, exporter Exporter, logger *zap.Logger) *DedupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DedupService{
		dedup:    d,
		store:    store,
		runs:     runs,
		exporter: exporter,
		logger:   logger,
		now:      time.Now,
	}
}

// DedupOutcome is a finished run plus the canonical listings it produced.
type DedupOutcome struct {
	Run       *models.DedupRun
	Listings  []*models.Listing
	ExportURL string
}

// Run deduplicates the stored listings matched by filter. An unfiltered run
// replaces the whole canonical table; a filtered one only upserts.
func (s *DedupService) Run(ctx context.Context, filter storage.ListingFilter) (*DedupOutcome, error) {
	if s.store == nil {
		return nil, fmt.Errorf("dedup run: no listing store configured")
	}

	listings, err := s.store.ListListings(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("load listings: %w", err)
	}

	outcome, err := s.RunListings(ctx, listings)
	if err != nil {
		return outcome, err
	}

	if filter.IsZero() {
		pruned, err := s.store.PruneCanonicalListings(ctx, outcome.Run.ID)
		if err != nil {
			return outcome, fmt.Errorf("prune canonical listings: %w", err)
		}
		if pruned > 0 {
			s.logger.Info("pruned stale canonical listings", zap.Int64("count", pruned))
		}
	}
	return outcome, nil
}

// RunListings deduplicates listings. Invalid listings are skipped and counted
// rather than failing the batch.
func (s *DedupService) RunListings(ctx context.Context, listings []*models.Listing) (*DedupOutcome, error) {
	run := &models.DedupRun{
		ID:         uuid.NewString(),
		StartedAt:  s.now(),
		Status:     models.RunStatusRunning,
		ListingsIn: len(listings),
	}
	outcome := &DedupOutcome{Run: run}

	if s.runs != nil {
		if err := s.runs.CreateDedupRun(run); err != nil {
			return nil, fmt.Errorf("create dedup run: %w", err)
		}
	}

	valid, invalid := partitionValid(listings)
	run.ListingsInvalid = len(invalid)
	for _, err := range invalid {
		s.logRun(run.ID, models.LogLevelWarn, err.Error())
	}

	result, err := s.dedup.Run(ctx, valid)
	if err != nil {
		return outcome, s.fail(run, fmt.Errorf("deduplicate: %w", err))
	}

	run.ListingsOut = len(result.Listings)
	run.DuplicatesRemoved = result.Stats.DuplicatesRemoved
	run.DeduplicationRate = result.Stats.DeduplicationRate
	run.Buckets = result.Buckets
	run.LargestBucket = result.LargestBucket
	run.MergedClusters = result.MergedClusters
	outcome.Listings = result.Listings

	if s.store != nil {
		if err := s.store.UpsertCanonicalListings(ctx, run.ID, result.Listings); err != nil {
			return outcome, s.fail(run, fmt.Errorf("store canonical listings: %w", err))
		}
	}

	if s.exporter != nil {
		url, err := s.exporter.ExportCanonical(ctx, &storage.CanonicalExport{
			RunID:      run.ID,
			ExportedAt: s.now(),
			Stats:      result.Stats,
			Listings:   result.Listings,
		})
		if err != nil {
			// the canonical table is already written; a failed upload is not fatal
			s.logger.Warn("canonical export failed", zap.String("run_id", run.ID), zap.Error(err))
			s.logRun(run.ID, models.LogLevelWarn, fmt.Sprintf("export failed: %v", err))
		} else {
			outcome.ExportURL = url
		}
	}

	finished := s.now()
	run.FinishedAt = &finished
	run.Status = models.RunStatusCompleted
	if s.runs != nil {
		if err := s.runs.FinishDedupRun(run); err != nil {
			s.logger.Warn("failed to record dedup run", zap.String("run_id", run.ID), zap.Error(err))
		}
	}

	msg := fmt.Sprintf("dedup complete: %d in, %d invalid, %d out, %s removed",
		run.ListingsIn, run.ListingsInvalid, run.ListingsOut, run.DeduplicationRate)
	s.logRun(run.ID, models.LogLevelInfo, msg)
	s.logger.Info("dedup run complete",
		zap.String("run_id", run.ID),
		zap.Int("listings_in", run.ListingsIn),
		zap.Int("listings_invalid", run.ListingsInvalid),
		zap.Int("listings_out", run.ListingsOut),
		zap.Int("merged_clusters", run.MergedClusters),
		zap.String("deduplication_rate", run.DeduplicationRate))

	return outcome, nil
}

func (s *DedupService) fail(run *models.DedupRun, err error) error {
	finished := s.now()
	run.FinishedAt = &finished
	run.Status = models.RunStatusFailed
	run.ErrorMessage = err.Error()

	s.logger.Error("dedup run failed", zap.String("run_id", run.ID), zap.Error(err))
	s.logRun(run.ID, models.LogLevelError, err.Error())
	if s.runs != nil {
		if ferr := s.runs.FinishDedupRun(run); ferr != nil {
			s.logger.Warn("failed to record dedup run", zap.String("run_id", run.ID), zap.Error(ferr))
		}
	}
	return err
}

func (s *DedupService) logRun(runID string, level models.LogLevel, message string) {
	if s.runs == nil {
		return
	}
	if err := s.runs.Log(runID, level, message, dedupScope); err != nil {
		s.logger.Warn("failed to write run log", zap.Error(err))
	}
}
