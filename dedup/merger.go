package dedup

import (
	"sort"
	"strings"
	"time"

	"casas_scrooper/identity"
	"casas_scrooper/models"
)

// TrustRanking orders sources; higher wins. Unlisted sources rank 0.
type TrustRanking map[string]int

// DefaultTrustRanking is used when no site config declares a trust level.
func DefaultTrustRanking() TrustRanking {
	return TrustRanking{
		"supercasas": 2,
		"corotos":    1,
	}
}

func (t TrustRanking) of(source string) int {
	return t[strings.ToLower(strings.TrimSpace(source))]
}

// Merger collapses a duplicate cluster into one canonical listing.
type Merger struct {
	trust TrustRanking
	now   func() time.Time
}

// NewMerger creates a Merger. A nil ranking selects DefaultTrustRanking.
func NewMerger(trust TrustRanking) *Merger {
	if trust == nil {
		trust = DefaultTrustRanking()
	}
	normalized := make(TrustRanking, len(trust))
	for source, rank := range trust {
		normalized[strings.ToLower(strings.TrimSpace(source))] = rank
	}
	return &Merger{trust: normalized, now: time.Now}
}

// WithClock replaces the clock used for MergedAt.
func (m *Merger) WithClock(now func() time.Time) *Merger {
	m.now = now
	return m
}

// Merge returns the canonical listing for cluster. A single listing is
// returned as is. Constituents are never modified.
//
// The most trusted listing supplies every scalar field; area, bedrooms,
// bathrooms, parking and description are back-filled from the next most
// trusted listing that has them when the base lacks them.
func (m *Merger) Merge(cluster []*models.Listing) (*models.Listing, error) {
	switch len(cluster) {
	case 0:
		return nil, ErrEmptyCluster
	case 1:
		if cluster[0] == nil {
			return nil, ErrNilListing
		}
		return cluster[0], nil
	}

	byTrust := make([]*models.Listing, len(cluster))
	copy(byTrust, cluster)
	for _, l := range byTrust {
		if l == nil {
			return nil, ErrNilListing
		}
	}
	sort.SliceStable(byTrust, func(i, j int) bool {
		return m.trust.of(byTrust[i].Source) > m.trust.of(byTrust[j].Source)
	})

	base := byTrust[0]
	merged := *base
	merged.Area = clonePtr(base.Area)
	merged.Bedrooms = clonePtr(base.Bedrooms)
	merged.Bathrooms = clonePtr(base.Bathrooms)
	merged.Parking = clonePtr(base.Parking)
	merged.Description = clonePtr(base.Description)

	for _, l := range byTrust[1:] {
		backfill(&merged.Area, l.Area)
		backfill(&merged.Bedrooms, l.Bedrooms)
		backfill(&merged.Bathrooms, l.Bathrooms)
		backfill(&merged.Parking, l.Parking)
		backfill(&merged.Description, l.Description)
	}

	merged.Images = unionImages(byTrust)

	merged.SourceIDs = make([]models.SourceRef, 0, len(cluster))
	externalIDs := make([]string, 0, len(cluster))
	for _, l := range cluster {
		merged.SourceIDs = append(merged.SourceIDs, l.Ref())
		externalIDs = append(externalIDs, l.ExternalID)
	}

	mergedAt := m.now()
	merged.ID = identity.MergedID(externalIDs)
	merged.IsMerged = true
	merged.MergedAt = &mergedAt

	return &merged, nil
}

// unionImages concatenates image URLs in first-seen order without repeats.
func unionImages(listings []*models.Listing) []string {
	seen := make(map[string]bool)
	var images []string
	for _, l := range listings {
		for _, img := range l.Images {
			if seen[img] {
				continue
			}
			seen[img] = true
			images = append(images, img)
		}
	}
	return images
}

func backfill[T any](dst **T, src *T) {
	if *dst == nil && src != nil {
		*dst = clonePtr(src)
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
