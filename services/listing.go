package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"casas_scrooper/location"
	"casas_scrooper/models"
)

// ListingStore persists raw scraped listings.
type ListingStore interface {
	UpsertListing(ctx context.Context, l *models.Listing, normalizedCity string) (bool, error)
}

// ListingService is the intake path for scraped listings
type ListingService struct {
	store      ListingStore
	match      *MatchService
	normalizer *location.Normalizer
	logger     *zap.Logger
}

// NewListingService creates a new ListingService. match may be nil.
func NewListingService(store ListingStore, match *MatchService, normalizer *location.Normalizer, logger *zap.Logger) *ListingService {
	if normalizer == nil {
		normalizer = location.NewNormalizer(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListingService{
		store:      store,
		match:      match,
		normalizer: normalizer,
		logger:     logger,
	}
}

// ProcessResult contains the outcome of ingesting a listing
type ProcessResult struct {
	IsNewListing bool
	Matches      int
}

// Ingest validates l and upserts it keyed by (source, external_id). New
// listings are checked against stored listings from other sources and any
// likely duplicates are recorded for review.
// This is idempotent - safe to call multiple times for the same listing.
func (s *ListingService) Ingest(ctx context.Context, l *models.Listing) (*ProcessResult, error) {
	l = CleanListing(l)
	if err := ValidateListing(l); err != nil {
		return nil, err
	}

	city, _ := s.normalizer.NormalizeCity(l.City)
	isNew, err := s.store.UpsertListing(ctx, l, city)
	if err != nil {
		return nil, fmt.Errorf("upsert listing %s/%s: %w", l.Source, l.ExternalID, err)
	}

	result := &ProcessResult{IsNewListing: isNew}
	if isNew && s.match != nil {
		n, err := s.match.RecordMatches(ctx, l)
		if err != nil {
			s.logger.Warn("failed to record matches",
				zap.String("source", l.Source),
				zap.String("external_id", l.ExternalID),
				zap.Error(err))
		}
		result.Matches = n
	}

	return result, nil
}

// ProcessStats tracks aggregate statistics for a scrape run
type ProcessStats struct {
	ListingsProcessed int
	ListingsNew       int
	Matches           int
	Errors            int
}

// Aggregate adds a ProcessResult to the stats
func (s *ProcessStats) Aggregate(r *ProcessResult) {
	s.ListingsProcessed++
	if r.IsNewListing {
		s.ListingsNew++
	}
	s.Matches += r.Matches
}
