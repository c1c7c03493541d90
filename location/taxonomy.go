// Package location canonicalizes free-text city and zone names into a fixed
// taxonomy.
package location

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Entry maps a set of raw spellings to one canonical display name.
type Entry struct {
	Canonical string   `yaml:"canonical"`
	Aliases   []string `yaml:"aliases"`
}

// alias is one lookup key, kept in insertion order for the
// accent-insensitive pass.
type alias struct {
	key       string // lowercase, accents preserved
	folded    string // lowercase, accents stripped
	canonical string
}

type aliasTable struct {
	exact   map[string]string
	ordered []alias
}

// Taxonomy is a read-only set of city and zone alias tables. Build one with
// NewTaxonomy, LoadTaxonomy or DefaultTaxonomy and share it freely.
type Taxonomy struct {
	cities aliasTable
	zones  aliasTable
}

type taxonomyFile struct {
	Cities []Entry `yaml:"cities"`
	Zones  []Entry `yaml:"zones"`
}

// NewTaxonomy builds a taxonomy from ordered city and zone entries. The
// canonical name of each entry is registered as an alias of itself. When two
// entries claim the same key the first one wins.
func NewTaxonomy(cities, zones []Entry) *Taxonomy {
	return &Taxonomy{
		cities: buildTable(cities),
		zones:  buildTable(zones),
	}
}

// LoadTaxonomy reads a YAML taxonomy file with top-level `cities` and `zones`
// sequences. Sequence order is preserved as alias insertion order.
func LoadTaxonomy(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}

	var file taxonomyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse taxonomy %s: %w", path, err)
	}
	if len(file.Cities) == 0 && len(file.Zones) == 0 {
		return nil, fmt.Errorf("taxonomy %s has no cities or zones", path)
	}

	return NewTaxonomy(file.Cities, file.Zones), nil
}

// CityCount returns the number of distinct canonical cities
func (t *Taxonomy) CityCount() int {
	return t.cities.canonicalCount()
}

// ZoneCount returns the number of distinct canonical zones
func (t *Taxonomy) ZoneCount() int {
	return t.zones.canonicalCount()
}

func buildTable(entries []Entry) aliasTable {
	table := aliasTable{exact: make(map[string]string)}
	add := func(raw, canonical string) {
		key := collapse(strings.ToLower(raw))
		if key == "" {
			return
		}
		if _, exists := table.exact[key]; exists {
			return
		}
		table.exact[key] = canonical
		table.ordered = append(table.ordered, alias{
			key:       key,
			folded:    foldAccents(key),
			canonical: canonical,
		})
	}

	for _, e := range entries {
		canonical := strings.TrimSpace(e.Canonical)
		if canonical == "" {
			continue
		}
		add(canonical, canonical)
		for _, a := range e.Aliases {
			add(a, canonical)
		}
	}
	return table
}

func (t aliasTable) lookup(normalized string) (string, bool) {
	if canonical, ok := t.exact[normalized]; ok {
		return canonical, true
	}

	folded := foldAccents(normalized)
	for _, a := range t.ordered {
		if a.folded == folded {
			return a.canonical, true
		}
	}
	return "", false
}

func (t aliasTable) canonicalCount() int {
	seen := make(map[string]struct{})
	for _, a := range t.ordered {
		seen[a.canonical] = struct{}{}
	}
	return len(seen)
}
