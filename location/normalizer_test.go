package location

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeZone(t *testing.T) {
	n := NewNormalizer(nil)

	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{name: "exact alias", raw: "piantini", expected: "Piantini"},
		{name: "mixed case and padding", raw: "  PIANTINI ", expected: "Piantini"},
		{name: "accent added by source", raw: "piántini", expected: "Piantini"},
		{name: "accent dropped by source", raw: "Serralles", expected: "Serrallés"},
		{name: "internal whitespace", raw: "evaristo    morales", expected: "Evaristo Morales"},
		{name: "abbreviation", raw: "Ens. Naco", expected: "Naco"},
		{name: "unknown zone falls back to title case", raw: "villa de los PINOS", expected: "Villa de los Pinos"},
		{name: "zone-only lowercase words", raw: "lomas y valles en flor", expected: "Lomas y Valles en Flor"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := n.NormalizeZone(tt.raw)
			require.True(t, ok)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNormalizeCity(t *testing.T) {
	n := NewNormalizer(nil)

	got, ok := n.NormalizeCity("Distrito Nacional")
	require.True(t, ok)
	assert.Equal(t, "Santo Domingo", got)

	got, ok = n.NormalizeCity("santo domingo de guzman")
	require.True(t, ok)
	assert.Equal(t, "Santo Domingo", got)

	got, ok = n.NormalizeCity("san pedro de macoris")
	require.True(t, ok)
	assert.Equal(t, "San Pedro de Macorís", got)

	// "y" and "en" are only kept lowercase for zones
	got, ok = n.NormalizeCity("villa y campo")
	require.True(t, ok)
	assert.Equal(t, "Villa Y Campo", got)
}

func TestNormalize_Blank(t *testing.T) {
	n := NewNormalizer(nil)

	for _, raw := range []string{"", "   ", "\t\n"} {
		_, ok := n.NormalizeCity(raw)
		assert.False(t, ok)
		_, ok = n.NormalizeZone(raw)
		assert.False(t, ok)
	}
}

func TestNormalize_FallbackIsStableTitleCase(t *testing.T) {
	n := NewNormalizer(nil)

	for _, raw := range []string{"barrio NUEVO", "los alcarrizos", "ciudad de las flores", "ÁREA INDUSTRIAL"} {
		first, ok := n.NormalizeZone(raw)
		require.True(t, ok)
		second, ok := n.NormalizeZone(first)
		require.True(t, ok)
		assert.Equal(t, first, second, "title case should be stable for %q", raw)
	}
}

func TestNormalize_FirstInsertedAliasWins(t *testing.T) {
	// both keys fold to "cana" once accents are stripped
	taxonomy := NewTaxonomy(nil, []Entry{
		{Canonical: "Caña Alta", Aliases: []string{"caña"}},
		{Canonical: "Cana Baja", Aliases: []string{"cána"}},
	})
	n := NewNormalizer(taxonomy)

	got, _ := n.NormalizeZone("cana")
	assert.Equal(t, "Caña Alta", got)

	// exact keys still win over the folded pass
	got, _ = n.NormalizeZone("cána")
	assert.Equal(t, "Cana Baja", got)
}

func TestNormalize_InjectedTaxonomy(t *testing.T) {
	taxonomy := NewTaxonomy(
		[]Entry{{Canonical: "Panamá", Aliases: []string{"ciudad de panamá", "panama city"}}},
		[]Entry{{Canonical: "Punta Paitilla", Aliases: []string{"paitilla"}}},
	)
	n := NewNormalizer(taxonomy)

	got, _ := n.NormalizeCity("Panama City")
	assert.Equal(t, "Panamá", got)

	got, _ = n.NormalizeZone("Paitilla")
	assert.Equal(t, "Punta Paitilla", got)

	// the default market is not consulted
	got, _ = n.NormalizeZone("piántini")
	assert.Equal(t, "Piántini", got)
}

func TestLoadTaxonomy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taxonomy.yaml")
	content := `
cities:
  - canonical: Santo Domingo
    aliases: [distrito nacional, sto dgo]
zones:
  - canonical: Piantini
    aliases: [ens. piantini]
  - canonical: Naco
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	taxonomy, err := LoadTaxonomy(path)
	require.NoError(t, err)
	assert.Equal(t, 1, taxonomy.CityCount())
	assert.Equal(t, 2, taxonomy.ZoneCount())

	n := NewNormalizer(taxonomy)
	got, _ := n.NormalizeCity("STO DGO")
	assert.Equal(t, "Santo Domingo", got)
	got, _ = n.NormalizeZone("naco")
	assert.Equal(t, "Naco", got)
}

func TestLoadTaxonomy_Errors(t *testing.T) {
	_, err := LoadTaxonomy(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("cities: []\n"), 0644))
	_, err = LoadTaxonomy(empty)
	assert.Error(t, err)
}

func TestFoldAccents(t *testing.T) {
	assert.Equal(t, "higuey", FoldAccents("Higüey"))
	assert.Equal(t, "sosua", FoldAccents("SOSÚA"))
	assert.Equal(t, "pena", FoldAccents("peña"))
}
