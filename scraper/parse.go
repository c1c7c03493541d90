package scraper

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"casas_scrooper/location"
	"casas_scrooper/models"
)

var (
	numberRegex = regexp.MustCompile(`\d[\d.,]*`)
	countRegex  = regexp.MustCompile(`\d+`)
	areaRegex   = regexp.MustCompile(`(?i)(\d[\d.,]*)\s*(m²|m2|mt2|mts2|mts|mt|metros|pies2|pies|ft²|ft2|sq\s?ft)`)
)

const sqFtToM2 = 0.09290304

// ParsePrice extracts the amount and currency from a price label such as
// "RD$ 10,500,000" or "US$185,000". Labels without a currency marker get
// defaultCurrency.
func ParsePrice(text, defaultCurrency string) (float64, string, bool) {
	currency := detectCurrency(text)
	if currency == "" {
		currency = strings.ToUpper(strings.TrimSpace(defaultCurrency))
	}

	raw := numberRegex.FindString(text)
	if raw == "" {
		return 0, currency, false
	}
	v, ok := parseAmount(raw)
	return v, currency, ok
}

func detectCurrency(text string) string {
	upper := strings.ToUpper(text)
	switch {
	case strings.Contains(upper, "RD$"), strings.Contains(upper, "DOP"), strings.Contains(upper, "RD "):
		return models.CurrencyDOP
	case strings.Contains(upper, "US$"), strings.Contains(upper, "USD"), strings.Contains(upper, "U$"):
		return models.CurrencyUSD
	case strings.Contains(upper, "€"), strings.Contains(upper, "EUR"):
		return "EUR"
	case strings.Contains(upper, "$"):
		return models.CurrencyUSD
	}
	return ""
}

// parseAmount reads "10,500,000", "10.500.000", "1.500" or "185000.50".
// A dot followed by exactly three digits is a thousands separator.
func parseAmount(raw string) (float64, bool) {
	s := strings.TrimRight(raw, ".,")
	s = strings.ReplaceAll(s, ",", "")

	if dots := strings.Count(s, "."); dots > 1 {
		s = strings.ReplaceAll(s, ".", "")
	} else if dots == 1 {
		if idx := strings.IndexByte(s, '.'); len(s)-idx-1 == 3 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseArea returns the area in square meters, converting from square feet.
func ParseArea(text string) *float64 {
	m := areaRegex.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, ok := parseAmount(m[1])
	if !ok || v <= 0 {
		return nil
	}
	unit := strings.ToLower(m[2])
	if strings.HasPrefix(unit, "pies") || strings.HasPrefix(unit, "ft") || strings.HasPrefix(unit, "sq") {
		v = sqFtToSqM(v)
	}
	return &v
}

func sqFtToSqM(v float64) float64 {
	return math.Round(v*sqFtToM2*100) / 100
}

// ParseCount returns the first integer in text, e.g. 3 for "3 hab.".
func ParseCount(text string) *int {
	raw := countRegex.FindString(text)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &n
}

// SplitLocation splits a "Zone, City" label. A single part is a city unless
// the taxonomy only knows it as a zone.
func SplitLocation(text string, normalizer *location.Normalizer) (zone, city string) {
	var parts []string
	for _, p := range strings.Split(text, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}

	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		if _, isCity := normalizer.LookupCity(parts[0]); isCity {
			return "", parts[0]
		}
		if _, isZone := normalizer.LookupZone(parts[0]); isZone {
			return parts[0], ""
		}
		return "", parts[0]
	}
	return parts[0], parts[len(parts)-1]
}

var propertyTypeKeywords = []struct {
	keyword, propertyType string
}{
	{"penthouse", "penthouse"},
	{"apartamento", "apartment"},
	{"apto", "apartment"},
	{"townhouse", "townhouse"},
	{"villa", "villa"},
	{"casa", "house"},
	{"solar", "land"},
	{"terreno", "land"},
	{"finca", "land"},
	{"local", "commercial"},
	{"oficina", "commercial"},
	{"nave", "commercial"},
	{"edificio", "building"},
}

// DetectPropertyType maps Spanish listing vocabulary to a property type.
func DetectPropertyType(text string) string {
	lower := location.FoldAccents(text)
	for _, k := range propertyTypeKeywords {
		if strings.Contains(lower, k.keyword) {
			return k.propertyType
		}
	}
	return ""
}

// DetectTransaction returns sale or rent from listing text, or fallback.
func DetectTransaction(text, fallback string) string {
	lower := location.FoldAccents(text)
	switch {
	case strings.Contains(lower, "alquiler"), strings.Contains(lower, "alquila"),
		strings.Contains(lower, "renta"), strings.Contains(lower, "/mes"):
		return models.TransactionRent
	case strings.Contains(lower, "venta"), strings.Contains(lower, "vende"):
		return models.TransactionSale
	}
	return fallback
}
