package dedup

import (
	"sort"

	"casas_scrooper/models"
)

// Match is a candidate that scored at or above the duplicate threshold.
type Match struct {
	Listing    *models.Listing
	Similarity models.SimilarityScore
}

// Grouper decides duplicate pairs and clusters fingerprint buckets.
type Grouper struct {
	scorer    *Scorer
	threshold float64
}

// NewGrouper creates a Grouper using scorer and the given inclusive threshold.
func NewGrouper(scorer *Scorer, threshold float64) *Grouper {
	return &Grouper{scorer: scorer, threshold: threshold}
}

// IsDuplicate reports whether a and b describe the same property. Listings
// from the same source are never duplicates: each scraper deduplicates its
// own output.
func (g *Grouper) IsDuplicate(a, b *models.Listing) bool {
	if a.Source == b.Source {
		return false
	}
	return g.scorer.Similarity(a, b).Score >= g.threshold
}

// FindDuplicates scores listing against every cross-source candidate and
// returns those at or above the threshold, best first.
func (g *Grouper) FindDuplicates(listing *models.Listing, candidates []*models.Listing) []Match {
	target := g.scorer.prepare(listing)

	var matches []Match
	for _, c := range candidates {
		if c == nil || c.Source == listing.Source {
			continue
		}
		sim := g.scorer.compare(target, g.scorer.prepare(c))
		if sim.Score >= g.threshold {
			matches = append(matches, Match{Listing: c, Similarity: sim})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity.Score > matches[j].Similarity.Score
	})
	return matches
}

func (g *Grouper) isDuplicatePrepared(a, b *prepared) bool {
	if a.listing.Source == b.listing.Source {
		return false
	}
	return g.scorer.compare(a, b).Score >= g.threshold
}

// cluster groups one bucket with seed-based single-link: each unassigned
// listing seeds a cluster and absorbs every later unassigned listing that
// duplicates the seed itself. Members are never compared with each other,
// so the outcome depends on input order and is not transitive.
func (g *Grouper) cluster(bucket []*prepared) [][]*prepared {
	assigned := make([]bool, len(bucket))
	var clusters [][]*prepared

	for i, seed := range bucket {
		if assigned[i] {
			continue
		}
		assigned[i] = true
		group := []*prepared{seed}

		for j := i + 1; j < len(bucket); j++ {
			if assigned[j] {
				continue
			}
			if g.isDuplicatePrepared(seed, bucket[j]) {
				assigned[j] = true
				group = append(group, bucket[j])
			}
		}
		clusters = append(clusters, group)
	}
	return clusters
}
