package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"casas_scrooper/location"
	"casas_scrooper/models"
)

func intPtr(v int) *int { return &v }

func baseListing() *models.Listing {
	return &models.Listing{
		Source:     "supercasas",
		ExternalID: "SC-1",
		City:       "Santo Domingo",
		Zone:       "Piantini",
		Price:      9_800_000,
		Currency:   "DOP",
		Bedrooms:   intPtr(3),
		Bathrooms:  intPtr(2),
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	n := location.NewNormalizer(nil)
	l := baseListing()

	fp := Fingerprint(l, n)
	assert.Len(t, fp, 16)
	assert.Equal(t, fp, Fingerprint(l, n))
}

func TestFingerprint_NormalizesLocation(t *testing.T) {
	n := location.NewNormalizer(nil)
	a := baseListing()
	b := baseListing()
	b.City = "Distrito Nacional"
	b.Zone = "piántini"
	b.Price = 10_100_000 // same 500k bucket

	assert.Equal(t, Fingerprint(a, n), Fingerprint(b, n))
}

func TestFingerprint_SeparatesBuckets(t *testing.T) {
	n := location.NewNormalizer(nil)
	base := Fingerprint(baseListing(), n)

	tests := []struct {
		name   string
		mutate func(l *models.Listing)
	}{
		{name: "zone", mutate: func(l *models.Listing) { l.Zone = "Naco" }},
		{name: "price bucket", mutate: func(l *models.Listing) { l.Price = 12_000_000 }},
		{name: "bedrooms", mutate: func(l *models.Listing) { l.Bedrooms = intPtr(4) }},
		{name: "missing bathrooms", mutate: func(l *models.Listing) { l.Bathrooms = nil }},
		{name: "missing city", mutate: func(l *models.Listing) { l.City = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := baseListing()
			tt.mutate(l)
			assert.NotEqual(t, base, Fingerprint(l, n))
		})
	}
}

func TestPriceBucket(t *testing.T) {
	assert.Equal(t, int64(10_000_000), PriceBucket(9_800_000, "DOP"))
	assert.Equal(t, int64(10_000_000), PriceBucket(10_249_999, "dop"))
	assert.Equal(t, int64(10_500_000), PriceBucket(10_250_000, "DOP"))
	assert.Equal(t, int64(250_000), PriceBucket(245_000, "USD"))
	assert.Equal(t, int64(240_000), PriceBucket(244_999, "USD"))
	assert.Equal(t, int64(0), PriceBucket(0, "USD"))
}

func TestMergedID_OrderIndependent(t *testing.T) {
	a := MergedID([]string{"SC-1", "CO-9", "EN-4"})
	b := MergedID([]string{"EN-4", "SC-1", "CO-9"})

	assert.Equal(t, a, b)
	assert.Contains(t, a, "merged_")
	assert.NotEqual(t, a, MergedID([]string{"SC-1", "CO-9"}))
}

func TestMergedID_DoesNotMutateInput(t *testing.T) {
	ids := []string{"b", "a"}
	MergedID(ids)
	assert.Equal(t, []string{"b", "a"}, ids)
}
