package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"casas_scrooper/location"
	"casas_scrooper/models"
)

const (
	// LocalCurrency listings are bucketed on a coarser price grid
	LocalCurrency      = models.CurrencyDOP
	LocalPriceBucket   = 500_000
	ForeignPriceBucket = 10_000

	fingerprintLength = 16
	mergedIDPrefix    = "merged_"
)

// Fingerprint returns the bucket key used to partition a batch before any
// pairwise comparison. It is deliberately coarse: equal fingerprints only make
// two listings candidates, never duplicates.
func Fingerprint(listing *models.Listing, normalizer *location.Normalizer) string {
	city, ok := normalizer.NormalizeCity(listing.City)
	if !ok {
		city = "unknown"
	}
	zone, ok := normalizer.NormalizeZone(listing.Zone)
	if !ok {
		zone = "unknown"
	}

	input := strings.ToLower(fmt.Sprintf("%s|%s|%d|%s|%s",
		city,
		zone,
		PriceBucket(listing.Price, listing.Currency),
		countOrX(listing.Bedrooms),
		countOrX(listing.Bathrooms),
	))
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])[:fingerprintLength]
}

// PriceBucket rounds price to the nearest bucket boundary for its currency.
func PriceBucket(price float64, currency string) int64 {
	width := float64(ForeignPriceBucket)
	if strings.EqualFold(strings.TrimSpace(currency), LocalCurrency) {
		width = LocalPriceBucket
	}
	return int64(math.Round(price/width)) * int64(width)
}

// MergedID derives a merged listing id from its constituents' external ids.
// The ids are sorted first so the result does not depend on cluster order.
func MergedID(externalIDs []string) string {
	sorted := make([]string, len(externalIDs))
	copy(sorted, externalIDs)
	sort.Strings(sorted)

	hash := sha256.Sum256([]byte("merge:" + strings.Join(sorted, "|")))
	return mergedIDPrefix + hex.EncodeToString(hash[:])[:fingerprintLength]
}

func countOrX(v *int) string {
	if v == nil {
		return "x"
	}
	return strconv.Itoa(*v)
}
