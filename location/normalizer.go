package location

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	zoneLowerWords = map[string]bool{
		"de": true, "del": true, "la": true, "las": true, "los": true, "el": true, "en": true, "y": true,
	}
	cityLowerWords = map[string]bool{
		"de": true, "del": true, "la": true, "las": true, "los": true, "el": true,
	}
)

// Normalizer maps raw city and zone strings onto a Taxonomy. It holds no
// mutable state and is safe for concurrent use.
type Normalizer struct {
	taxonomy *Taxonomy
}

// NewNormalizer creates a Normalizer over the given taxonomy. A nil taxonomy
// selects DefaultTaxonomy.
func NewNormalizer(taxonomy *Taxonomy) *Normalizer {
	if taxonomy == nil {
		taxonomy = DefaultTaxonomy()
	}
	return &Normalizer{taxonomy: taxonomy}
}

// NormalizeCity returns the canonical city for raw. ok is false only when raw
// is blank. Unknown names come back title-cased, so callers must not assume
// the result is a member of the taxonomy.
func (n *Normalizer) NormalizeCity(raw string) (string, bool) {
	return normalize(raw, n.taxonomy.cities, cityLowerWords)
}

// NormalizeZone is NormalizeCity for zones (sectors, neighbourhoods).
func (n *Normalizer) NormalizeZone(raw string) (string, bool) {
	return normalize(raw, n.taxonomy.zones, zoneLowerWords)
}

// LookupCity returns the canonical city only when raw is in the taxonomy.
func (n *Normalizer) LookupCity(raw string) (string, bool) {
	return n.taxonomy.cities.lookup(collapse(strings.ToLower(raw)))
}

// LookupZone returns the canonical zone only when raw is in the taxonomy.
func (n *Normalizer) LookupZone(raw string) (string, bool) {
	return n.taxonomy.zones.lookup(collapse(strings.ToLower(raw)))
}

func normalize(raw string, table aliasTable, lowerWords map[string]bool) (string, bool) {
	key := collapse(strings.ToLower(raw))
	if key == "" {
		return "", false
	}
	if canonical, ok := table.lookup(key); ok {
		return canonical, true
	}
	return titleCase(raw, lowerWords), true
}

// titleCase capitalizes each whitespace-separated token of raw, keeping the
// given articles and prepositions lowercase unless they open the name.
func titleCase(raw string, lowerWords map[string]bool) string {
	caser := cases.Title(language.Spanish)
	tokens := strings.Fields(raw)
	for i, tok := range tokens {
		lower := strings.ToLower(tok)
		if i > 0 && lowerWords[lower] {
			tokens[i] = lower
			continue
		}
		tokens[i] = caser.String(lower)
	}
	return strings.Join(tokens, " ")
}

// FoldAccents lowercases s and strips combining marks (á -> a, ñ -> n).
func FoldAccents(s string) string {
	return foldAccents(strings.ToLower(s))
}

func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
