package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"casas_scrooper/config"
	"casas_scrooper/models"
)

func corotosConfig(base string) *config.SiteConfig {
	return &config.SiteConfig{
		ID:       "corotos",
		Name:     "Corotos",
		Handler:  "api",
		Currency: "DOP",
		Endpoints: map[string]string{
			"base":   "https://www.corotos.com.do",
			"search": base + "/v1/listings?category=inmuebles&location={region}&page={page}",
		},
	}
}

const corotosPage = `{
  "data": [
    {
      "id": 48211,
      "url": "/listing/apartamento-piantini-48211",
      "title": "Vendo apartamento en Piantini",
      "price": {"amount": 10500000, "currency": "dop"},
      "location": {"city": "Distrito Nacional", "sector": "Ens. Piantini"},
      "attributes": {"bedrooms": 3, "bathrooms": 2, "parking": 2, "area": 152, "property_type": "Apartamento", "transaction": "venta"},
      "images": ["https://img.corotos.com.do/48211/1.jpg"],
      "description": "  Torre moderna con piscina  "
    },
    {
      "id": "A-77",
      "url": "https://www.corotos.com.do/listing/casa-77",
      "title": "Casa en alquiler",
      "price": {"display": "US$ 1,800"},
      "location": {"sector": "Bávaro, Punta Cana"},
      "attributes": {"area": 1500, "area_unit": "ft2"}
    },
    {"id": null, "title": "sin id"}
  ],
  "meta": {"page": %d, "total_pages": 2}
}`

func TestParseListingsJSON(t *testing.T) {
	region := config.Region{Slug: "santo-domingo", City: "Santo Domingo", TransactionType: "sale"}
	listings, hasNext, err := ParseListingsJSON(strings.NewReader(fmt.Sprintf(corotosPage, 1)), corotosConfig("http://api"), region, nil)
	require.NoError(t, err)
	assert.True(t, hasNext)
	require.Len(t, listings, 2)

	apt := listings[0]
	assert.Equal(t, "corotos", apt.Source)
	assert.Equal(t, "48211", apt.ExternalID)
	assert.Equal(t, "https://www.corotos.com.do/listing/apartamento-piantini-48211", apt.URL)
	assert.Equal(t, 10_500_000.0, apt.Price)
	assert.Equal(t, models.CurrencyDOP, apt.Currency)
	assert.Equal(t, "Distrito Nacional", apt.City)
	assert.Equal(t, "Ens. Piantini", apt.Zone)
	require.NotNil(t, apt.Area)
	assert.Equal(t, 152.0, *apt.Area)
	assert.Equal(t, 2, *apt.Parking)
	assert.Equal(t, "apartment", apt.PropertyType)
	assert.Equal(t, models.TransactionSale, apt.TransactionType)
	require.NotNil(t, apt.Description)
	assert.Equal(t, "Torre moderna con piscina", *apt.Description)

	house := listings[1]
	assert.Equal(t, "A-77", house.ExternalID)
	assert.Equal(t, 1_800.0, house.Price)
	assert.Equal(t, models.CurrencyUSD, house.Currency)
	assert.Equal(t, "Bávaro", house.Zone)
	assert.Equal(t, "Punta Cana", house.City)
	require.NotNil(t, house.Area)
	assert.InDelta(t, 139.35, *house.Area, 1e-9)
	assert.Nil(t, house.Bedrooms)
	assert.Equal(t, "house", house.PropertyType)
	assert.Equal(t, models.TransactionRent, house.TransactionType)
}

func TestParseListingsJSON_LastPage(t *testing.T) {
	_, hasNext, err := ParseListingsJSON(strings.NewReader(fmt.Sprintf(corotosPage, 2)), corotosConfig("http://api"), config.Region{}, nil)
	require.NoError(t, err)
	assert.False(t, hasNext)
}

func TestParseListingsJSON_Malformed(t *testing.T) {
	_, _, err := ParseListingsJSON(strings.NewReader(`{"data": [`), corotosConfig("http://api"), config.Region{}, nil)
	assert.Error(t, err)
}

func TestAPIHandler_Scrape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/listings", r.URL.Path)
		assert.Equal(t, "punta-cana", r.URL.Query().Get("location"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))

		var page int
		fmt.Sscanf(r.URL.Query().Get("page"), "%d", &page)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, corotosPage, page)
	}))
	defer srv.Close()

	h := NewHandler(corotosConfig(srv.URL), Deps{Client: srv.Client()})
	require.IsType(t, &APIHandler{}, h)
	assert.Equal(t, "corotos", h.ID())

	listings, err := h.Scrape(context.Background(), config.Region{Slug: "punta-cana", City: "Punta Cana"})
	require.NoError(t, err)
	assert.Len(t, listings, 4)
}

func TestPager_CancelledDuringRateLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := &pager{cfg: &config.SiteConfig{ID: "corotos", RateLimitMS: 60_000}, logger: zap.NewNop()}
	calls := 0
	listings, err := p.run(ctx, config.Region{Slug: "santo-domingo"}, func(context.Context, config.Region, int) ([]*models.Listing, bool, error) {
		calls++
		cancel()
		return []*models.Listing{{Source: "corotos", ExternalID: "1"}}, true, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, listings, 1)
	assert.Equal(t, 1, calls)
}
