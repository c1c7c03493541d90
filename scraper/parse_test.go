package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casas_scrooper/location"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		fallback string
		amount   float64
		currency string
		ok       bool
	}{
		{name: "pesos with commas", text: "RD$ 10,500,000", fallback: "USD", amount: 10_500_000, currency: "DOP", ok: true},
		{name: "dollars", text: "US$185,000", fallback: "DOP", amount: 185_000, currency: "USD", ok: true},
		{name: "dotted thousands", text: "RD$ 1.500.000", fallback: "", amount: 1_500_000, currency: "DOP", ok: true},
		{name: "single dotted thousand", text: "US$ 1.500", fallback: "", amount: 1_500, currency: "USD", ok: true},
		{name: "decimal cents", text: "USD 185000.50", fallback: "", amount: 185_000.5, currency: "USD", ok: true},
		{name: "bare dollar sign", text: "$ 95,000", fallback: "DOP", amount: 95_000, currency: "USD", ok: true},
		{name: "no marker uses fallback", text: "2,300,000", fallback: "dop", amount: 2_300_000, currency: "DOP", ok: true},
		{name: "euros", text: "€ 250.000", fallback: "", amount: 250_000, currency: "EUR", ok: true},
		{name: "no number", text: "Precio a convenir", fallback: "USD", amount: 0, currency: "USD", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, currency, ok := ParsePrice(tt.text, tt.fallback)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.amount, amount, 1e-9)
			assert.Equal(t, tt.currency, currency)
		})
	}
}

func TestParseArea(t *testing.T) {
	tests := []struct {
		text     string
		expected *float64
	}{
		{text: "150 m²", expected: floatPtr(150)},
		{text: "Área: 85.5 mts2", expected: floatPtr(85.5)},
		{text: "1,200 m2", expected: floatPtr(1200)},
		{text: "1000 pies2", expected: floatPtr(92.9)},
		{text: "sin datos", expected: nil},
		{text: "0 m2", expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := ParseArea(tt.text)
			if tt.expected == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.expected, *got, 1e-9)
		})
	}
}

func TestParseCount(t *testing.T) {
	assert.Equal(t, 3, *ParseCount("3 Hab."))
	assert.Equal(t, 2, *ParseCount("2.5 Baños"))
	assert.Nil(t, ParseCount("Estudio"))
	assert.Nil(t, ParseCount(""))
}

func TestSplitLocation(t *testing.T) {
	n := location.NewNormalizer(nil)

	tests := []struct {
		text, zone, city string
	}{
		{text: "Piantini, Santo Domingo", zone: "Piantini", city: "Santo Domingo"},
		{text: "Torre X, Naco, Distrito Nacional", zone: "Torre X", city: "Distrito Nacional"},
		{text: "Santiago", zone: "", city: "Santiago"},
		{text: "Piantini", zone: "Piantini", city: ""},
		{text: "Lugar Desconocido", zone: "", city: "Lugar Desconocido"},
		{text: " , ", zone: "", city: ""},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			zone, city := SplitLocation(tt.text, n)
			assert.Equal(t, tt.zone, zone)
			assert.Equal(t, tt.city, city)
		})
	}
}

func TestDetectPropertyType(t *testing.T) {
	assert.Equal(t, "apartment", DetectPropertyType("Apartamento en Venta"))
	assert.Equal(t, "penthouse", DetectPropertyType("Penthouse con terraza, apartamento de lujo"))
	assert.Equal(t, "house", DetectPropertyType("CASA en alquiler"))
	assert.Equal(t, "land", DetectPropertyType("Solar en Punta Cana"))
	assert.Equal(t, "commercial", DetectPropertyType("Local comercial"))
	assert.Empty(t, DetectPropertyType("Oportunidad única"))
}

func TestDetectTransaction(t *testing.T) {
	assert.Equal(t, "rent", DetectTransaction("Casa en Alquiler", "sale"))
	assert.Equal(t, "rent", DetectTransaction("RD$ 45,000 /mes", "sale"))
	assert.Equal(t, "sale", DetectTransaction("Se vende apartamento", "rent"))
	assert.Equal(t, "sale", DetectTransaction("Apartamento en Venta", ""))
	assert.Equal(t, "rent", DetectTransaction("Apartamento amueblado", "rent"))
}

func floatPtr(v float64) *float64 { return &v }
