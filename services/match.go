package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"casas_scrooper/dedup"
	"casas_scrooper/location"
	"casas_scrooper/models"
)

const defaultCandidateLimit = 500

// MatchStore finds candidate listings and records likely duplicates.
type MatchStore interface {
	ListCandidates(ctx context.Context, normalizedCity, excludeSource string, limit int) ([]*models.Listing, error)
	InsertPropertyMatch(ctx context.Context, pm *models.PropertyMatch) error
}

// MatchService records cross-source duplicate candidates as they arrive, so a
// reviewer can confirm or reject them before the next dedup run.
type MatchService struct {
	store          MatchStore
	grouper        *dedup.Grouper
	normalizer     *location.Normalizer
	logger         *zap.Logger
	candidateLimit int
}

// NewMatchService creates a new MatchService
func NewMatchService(store MatchStore, grouper *dedup.Grouper, normalizer *location.Normalizer, logger *zap.Logger) *MatchService {
	if normalizer == nil {
		normalizer = location.NewNormalizer(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MatchService{
		store:          store,
		grouper:        grouper,
		normalizer:     normalizer,
		logger:         logger,
		candidateLimit: defaultCandidateLimit,
	}
}

// RecordMatches compares l with stored listings in the same city and inserts
// a pending property_matches row per duplicate. Returns the number recorded.
func (s *MatchService) RecordMatches(ctx context.Context, l *models.Listing) (int, error) {
	city, ok := s.normalizer.NormalizeCity(l.City)
	if !ok {
		return 0, nil
	}

	candidates, err := s.store.ListCandidates(ctx, city, l.Source, s.candidateLimit)
	if err != nil {
		return 0, fmt.Errorf("list candidates: %w", err)
	}

	recorded := 0
	for _, m := range s.grouper.FindDuplicates(l, candidates) {
		reasons, err := json.Marshal(m.Similarity.Breakdown)
		if err != nil {
			return recorded, err
		}

		pm := &models.PropertyMatch{
			ID:                uuid.New(),
			Source:            l.Source,
			ExternalID:        l.ExternalID,
			MatchedSource:     m.Listing.Source,
			MatchedExternalID: m.Listing.ExternalID,
			Confidence:        float32(m.Similarity.Score),
			MatchReasons:      reasons,
			Status:            models.MatchStatusPending,
			CreatedAt:         time.Now(),
		}
		if err := s.store.InsertPropertyMatch(ctx, pm); err != nil {
			return recorded, fmt.Errorf("insert match: %w", err)
		}
		recorded++
	}

	if recorded > 0 {
		s.logger.Info("recorded duplicate candidates",
			zap.String("source", l.Source),
			zap.String("external_id", l.ExternalID),
			zap.Int("matches", recorded))
	}
	return recorded, nil
}
