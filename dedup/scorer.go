package dedup

import (
	"math"
	"strings"

	"casas_scrooper/location"
	"casas_scrooper/models"
)

// Scorer computes the weighted multi-signal similarity between two listings.
type Scorer struct {
	normalizer *location.Normalizer
	opts       Options
}

// NewScorer creates a Scorer. Callers are expected to have validated opts.
func NewScorer(normalizer *location.Normalizer, opts Options) *Scorer {
	if normalizer == nil {
		normalizer = location.NewNormalizer(nil)
	}
	return &Scorer{normalizer: normalizer, opts: opts}
}

// prepared caches the normalized view of a listing so a batch normalizes and
// tokenizes each listing once instead of once per comparison.
type prepared struct {
	listing *models.Listing
	city    string
	zone    string
	hasCity bool
	hasZone bool
	tokens  map[string]struct{}
}

func (s *Scorer) prepare(l *models.Listing) *prepared {
	p := &prepared{listing: l, tokens: titleTokens(l.Title)}
	p.city, p.hasCity = s.normalizer.NormalizeCity(l.City)
	p.zone, p.hasZone = s.normalizer.NormalizeZone(l.Zone)
	return p
}

// Similarity scores a against b. The result is symmetric and always in [0,1].
func (s *Scorer) Similarity(a, b *models.Listing) models.SimilarityScore {
	return s.compare(s.prepare(a), s.prepare(b))
}

func (s *Scorer) compare(a, b *prepared) models.SimilarityScore {
	breakdown := models.ScoreBreakdown{
		Price:      s.priceScore(a.listing, b.listing),
		Location:   locationScore(a, b),
		Attributes: s.attributeScore(a.listing, b.listing),
		Title:      jaccard(a.tokens, b.tokens),
	}

	w := s.opts.Weights
	score := w.Price*breakdown.Price +
		w.Location*breakdown.Location +
		w.Attributes*breakdown.Attributes +
		w.Title*breakdown.Title

	return models.SimilarityScore{
		Score:     clamp01(round4(score)),
		Breakdown: breakdown,
	}
}

// priceScore is 0 across currencies; no conversion is attempted.
func (s *Scorer) priceScore(a, b *models.Listing) float64 {
	if !strings.EqualFold(strings.TrimSpace(a.Currency), strings.TrimSpace(b.Currency)) {
		return 0
	}
	if a.Price <= 0 || b.Price <= 0 {
		return 0
	}

	avg := (a.Price + b.Price) / 2
	relDiff := math.Abs(a.Price-b.Price) / avg
	if relDiff <= s.opts.PriceTolerance {
		return 1
	}
	return math.Max(0, 1-(relDiff-s.opts.PriceTolerance)*s.opts.PriceDecay)
}

func locationScore(a, b *prepared) float64 {
	// an unknown city never places two listings together, even when both
	// sides lack one
	if !a.hasCity || !b.hasCity || a.city != b.city {
		return 0
	}
	// exact match first: two listings without a zone count as matching
	if a.hasZone == b.hasZone && a.zone == b.zone {
		return 1
	}
	if !a.hasZone || !b.hasZone {
		return 0.5
	}
	return 0.3
}

// attributeScore averages the structured attributes present on both sides.
// Nothing comparable yields a neutral 0.5.
func (s *Scorer) attributeScore(a, b *models.Listing) float64 {
	var matched, comparable int
	check := func(ok, equal bool) {
		if !ok {
			return
		}
		comparable++
		if equal {
			matched++
		}
	}

	if a.Bedrooms != nil && b.Bedrooms != nil {
		check(true, *a.Bedrooms == *b.Bedrooms)
	}
	if a.Bathrooms != nil && b.Bathrooms != nil {
		check(true, *a.Bathrooms == *b.Bathrooms)
	}
	if a.Area != nil && b.Area != nil && *a.Area > 0 && *b.Area > 0 {
		check(true, closeArea(*a.Area, *b.Area, s.opts.AreaTolerance))
	}
	check(a.PropertyType != "" && b.PropertyType != "", strings.EqualFold(a.PropertyType, b.PropertyType))
	check(a.TransactionType != "" && b.TransactionType != "", strings.EqualFold(a.TransactionType, b.TransactionType))

	if comparable == 0 {
		return 0.5
	}
	return float64(matched) / float64(comparable)
}

func closeArea(a, b, tolerance float64) bool {
	return math.Abs(a-b)/math.Max(a, b) <= tolerance
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
