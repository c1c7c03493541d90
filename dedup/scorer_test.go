package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casas_scrooper/location"
	"casas_scrooper/models"
)

func newTestScorer() *Scorer {
	return NewScorer(location.NewNormalizer(nil), DefaultOptions())
}

func TestSimilarity_AccentedZoneAndCloseprice(t *testing.T) {
	s := newTestScorer()
	a := listing("supercasas", "SC-1")
	b := listing("corotos", "CO-1", func(l *models.Listing) {
		l.Zone = "piántini"
		l.Price = 10_300_000
	})

	sim := s.Similarity(a, b)
	assert.Equal(t, 1.0, sim.Breakdown.Location)
	assert.Equal(t, 1.0, sim.Breakdown.Price)
	assert.GreaterOrEqual(t, sim.Score, 0.75)

	g := NewGrouper(s, DefaultOptions().Threshold)
	assert.True(t, g.IsDuplicate(a, b))
}

func TestSimilarity_CurrencyMismatchSitsOnThreshold(t *testing.T) {
	s := newTestScorer()
	a := listing("supercasas", "SC-1", func(l *models.Listing) { l.Currency = models.CurrencyUSD })
	b := listing("corotos", "CO-1")

	sim := s.Similarity(a, b)
	assert.Equal(t, 0.0, sim.Breakdown.Price)
	assert.Equal(t, 1.0, sim.Breakdown.Location)
	assert.Equal(t, 1.0, sim.Breakdown.Attributes)
	assert.Equal(t, 1.0, sim.Breakdown.Title)
	assert.Equal(t, 0.75, sim.Score)

	// the threshold is inclusive
	g := NewGrouper(s, 0.75)
	assert.True(t, g.IsDuplicate(a, b))

	b.Title = "Penthouse con vista al mar"
	assert.False(t, g.IsDuplicate(a, b))
}

func TestSimilarity_TitleOverlap(t *testing.T) {
	s := newTestScorer()
	a := listing("supercasas", "SC-1", func(l *models.Listing) { l.Title = "Apartamento en venta Piantini 3 habitaciones" })
	b := listing("corotos", "CO-1", func(l *models.Listing) { l.Title = "Se vende apto Piantini 3 hab" })

	title := s.Similarity(a, b).Breakdown.Title
	assert.Greater(t, title, 0.2)
	assert.Less(t, title, 0.6)
	assert.InDelta(t, 1.0/3.0, title, 1e-9)
}

func TestSimilarity_Symmetric(t *testing.T) {
	s := newTestScorer()
	a := listing("supercasas", "SC-1")
	b := listing("corotos", "CO-1", func(l *models.Listing) {
		l.Zone = "Naco"
		l.Price = 11_000_000
		l.Bedrooms = intPtr(2)
		l.Title = "Vendo apartamento Naco amueblado"
	})

	assert.Equal(t, s.Similarity(a, b), s.Similarity(b, a))
}

func TestSimilarity_Bounds(t *testing.T) {
	s := newTestScorer()
	pairs := [][2]*models.Listing{
		{listing("a", "1"), listing("b", "2")},
		{listing("a", "1"), listing("b", "2", func(l *models.Listing) {
			l.City = "Santiago"
			l.Price = 1
			l.Currency = models.CurrencyUSD
			l.Bedrooms = intPtr(9)
			l.Bathrooms = intPtr(9)
			l.Area = floatPtr(9000)
			l.PropertyType = "land"
			l.TransactionType = models.TransactionRent
			l.Title = ""
		})},
		{&models.Listing{Source: "a", ExternalID: "1"}, &models.Listing{Source: "b", ExternalID: "2"}},
	}

	for _, p := range pairs {
		sim := s.Similarity(p[0], p[1])
		assert.GreaterOrEqual(t, sim.Score, 0.0)
		assert.LessOrEqual(t, sim.Score, 1.0)
	}

	identical := s.Similarity(pairs[0][0], pairs[0][1])
	assert.Equal(t, 1.0, identical.Score)

	opposite := s.Similarity(pairs[1][0], pairs[1][1])
	assert.Equal(t, 0.0, opposite.Score)
}

func TestPriceScore(t *testing.T) {
	s := newTestScorer()
	tests := []struct {
		name   string
		a, b   float64
		curB   string
		expect float64
	}{
		{name: "equal", a: 100, b: 100, curB: "USD", expect: 1},
		{name: "within tolerance", a: 100, b: 104, curB: "USD", expect: 1},
		{name: "linear decay", a: 95, b: 105, curB: "USD", expect: 0.75},
		{name: "decays to zero", a: 100, b: 200, curB: "USD", expect: 0},
		{name: "currency case-insensitive", a: 100, b: 100, curB: " usd ", expect: 1},
		{name: "currency mismatch", a: 100, b: 100, curB: "DOP", expect: 0},
		{name: "zero price", a: 0, b: 100, curB: "USD", expect: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &models.Listing{Price: tt.a, Currency: "USD"}
			b := &models.Listing{Price: tt.b, Currency: tt.curB}
			assert.InDelta(t, tt.expect, s.priceScore(a, b), 1e-9)
		})
	}
}

func TestLocationScore(t *testing.T) {
	s := newTestScorer()
	tests := []struct {
		name         string
		cityB, zoneB string
		zoneA        string
		expect       float64
	}{
		{name: "same zone", zoneA: "Piantini", cityB: "Distrito Nacional", zoneB: "Ens. Piantini", expect: 1},
		{name: "different zone", zoneA: "Piantini", cityB: "Santo Domingo", zoneB: "Naco", expect: 0.3},
		{name: "one zone missing", zoneA: "Piantini", cityB: "Santo Domingo", zoneB: "", expect: 0.5},
		{name: "both zones missing", zoneA: "", cityB: "Santo Domingo", zoneB: "", expect: 1},
		{name: "different city", zoneA: "Piantini", cityB: "Santiago", zoneB: "Piantini", expect: 0},
		{name: "missing city", zoneA: "Piantini", cityB: "", zoneB: "Piantini", expect: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := s.prepare(&models.Listing{City: "Santo Domingo", Zone: tt.zoneA})
			b := s.prepare(&models.Listing{City: tt.cityB, Zone: tt.zoneB})
			assert.Equal(t, tt.expect, locationScore(a, b))
		})
	}

	t.Run("both cities missing", func(t *testing.T) {
		a := s.prepare(&models.Listing{Zone: "Piantini"})
		b := s.prepare(&models.Listing{Zone: "Piantini"})
		assert.Equal(t, 0.0, locationScore(a, b))
	})
}

func TestAttributeScore(t *testing.T) {
	s := newTestScorer()

	t.Run("nothing comparable is neutral", func(t *testing.T) {
		assert.Equal(t, 0.5, s.attributeScore(&models.Listing{}, &models.Listing{Bedrooms: intPtr(3)}))
	})

	t.Run("area within tolerance", func(t *testing.T) {
		a := &models.Listing{Area: floatPtr(100)}
		b := &models.Listing{Area: floatPtr(109)}
		assert.Equal(t, 1.0, s.attributeScore(a, b))
		b.Area = floatPtr(125)
		assert.Equal(t, 0.0, s.attributeScore(a, b))
	})

	t.Run("partial match", func(t *testing.T) {
		a := &models.Listing{Bedrooms: intPtr(3), Bathrooms: intPtr(2), PropertyType: "apartment", TransactionType: "sale"}
		b := &models.Listing{Bedrooms: intPtr(3), Bathrooms: intPtr(3), PropertyType: "Apartment", TransactionType: "rent"}
		assert.Equal(t, 0.5, s.attributeScore(a, b))
	})
}

func TestTitleTokens(t *testing.T) {
	tokens := titleTokens("¡Se VENDE apto en Piantini, 3 hab. con piscina!")
	assert.Equal(t, map[string]struct{}{"piantini": {}, "hab": {}, "piscina": {}}, tokens)

	assert.Equal(t, 0.0, jaccard(titleTokens(""), titleTokens("Piantini")))
	assert.Equal(t, 0.0, jaccard(titleTokens("en la de"), titleTokens("en la de")))
}

func TestOptionsValidate(t *testing.T) {
	require.NoError(t, DefaultOptions().Validate())
	assert.InDelta(t, 1.0, DefaultWeights().Sum(), 1e-9)

	opts := DefaultOptions()
	opts.Weights.Title = 0.10
	assert.ErrorIs(t, opts.Validate(), ErrInvalidWeights)

	opts = DefaultOptions()
	opts.Weights.Price = -0.25
	opts.Weights.Location = 0.80
	assert.ErrorIs(t, opts.Validate(), ErrInvalidWeights)

	opts = DefaultOptions()
	opts.Threshold = 1.5
	assert.Error(t, opts.Validate())
}
