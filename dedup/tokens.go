package dedup

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var tokenSplitRegex = regexp.MustCompile(`[^a-z0-9áéíóúñü]+`)

// titleStopwords are words every Spanish listing title repeats: articles,
// transaction verbs, property types and measurement units.
var titleStopwords = map[string]bool{
	// articles, prepositions
	"el": true, "la": true, "los": true, "las": true, "un": true, "una": true, "unos": true, "unas": true,
	"del": true, "de": true, "en": true, "con": true, "por": true, "para": true, "al": true, "sin": true,
	// transaction
	"venta": true, "vende": true, "vendo": true, "venden": true, "vender": true,
	"alquiler": true, "alquila": true, "alquilo": true, "alquilan": true, "alquilar": true,
	"renta": true, "rento": true, "rentar": true,
	// property types
	"apartamento": true, "apartamentos": true, "apto": true, "aptos": true, "apt": true,
	"casa": true, "casas": true, "villa": true, "villas": true, "penthouse": true,
	"local": true, "locales": true, "solar": true, "solares": true, "terreno": true, "terrenos": true,
	"oficina": true, "oficinas": true, "edificio": true, "nave": true, "finca": true,
	"townhouse": true, "estudio": true,
	// units
	"m2": true, "mt2": true, "mts": true, "mts2": true, "metros": true, "metro": true, "cuadrados": true,
}

// titleTokens lowercases title, splits it on anything outside [a-z0-9] and
// the Spanish accented letters, and drops short tokens and stopwords.
func titleTokens(title string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, tok := range tokenSplitRegex.Split(strings.ToLower(title), -1) {
		if utf8.RuneCountInString(tok) <= 2 || titleStopwords[tok] {
			continue
		}
		tokens[tok] = struct{}{}
	}
	return tokens
}

// jaccard is |a∩b| / |a∪b|, or 0 when either set is empty.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}
