package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casas_scrooper/config"
	"casas_scrooper/models"
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err, "fixture %s", name)
	return data
}

func supercasasConfig(base string) *config.SiteConfig {
	return &config.SiteConfig{
		ID:       "supercasas",
		Name:     "SuperCasas",
		Handler:  "html",
		Currency: "USD",
		MaxPages: 5,
		Endpoints: map[string]string{
			"base":   base,
			"search": base + "/buscar/?PagingPageSkip={page}&Locations={region}",
		},
		Selectors: config.Selectors{
			Card:      "#bigsearch-results-inner-results li.normal",
			ID:        "a",
			IDAttr:    "href",
			Link:      "a",
			Title:     ".title1",
			Price:     ".title2",
			Location:  ".title3",
			Bedrooms:  ".property-bedrooms",
			Bathrooms: ".property-bathrooms",
			Parking:   ".property-parking",
			Area:      ".property-size",
			Image:     "img",
			NextPage:  ".pagination a.next",
		},
	}
}

var santoDomingo = config.Region{Slug: "10095", City: "Santo Domingo", TransactionType: "sale"}

func TestParseListingsHTML(t *testing.T) {
	site := supercasasConfig("https://www.supercasas.com")
	listings, hasNext, err := ParseListingsHTML(strings.NewReader(string(loadFixture(t, "supercasas_search.html"))), site, santoDomingo, nil)
	require.NoError(t, err)
	assert.True(t, hasNext)
	require.Len(t, listings, 2)

	apt := listings[0]
	assert.Equal(t, "supercasas", apt.Source)
	assert.Equal(t, "1292845", apt.ExternalID)
	assert.Equal(t, "https://www.supercasas.com/apartamentos-venta-piantini/1292845/", apt.URL)
	assert.Equal(t, "Apartamento en Venta", apt.Title)
	assert.Equal(t, 185_000.0, apt.Price)
	assert.Equal(t, models.CurrencyUSD, apt.Currency)
	assert.Equal(t, "Piantini", apt.Zone)
	assert.Equal(t, "Santo Domingo", apt.City)
	require.NotNil(t, apt.Bedrooms)
	assert.Equal(t, 3, *apt.Bedrooms)
	require.NotNil(t, apt.Bathrooms)
	assert.Equal(t, 2, *apt.Bathrooms)
	require.NotNil(t, apt.Parking)
	assert.Equal(t, 1, *apt.Parking)
	require.NotNil(t, apt.Area)
	assert.Equal(t, 150.0, *apt.Area)
	assert.Equal(t, "apartment", apt.PropertyType)
	assert.Equal(t, models.TransactionSale, apt.TransactionType)
	assert.Equal(t, []string{"https://www.supercasas.com/img/1292845-1.jpg"}, apt.Images)
	assert.Nil(t, apt.Description)

	house := listings[1]
	assert.Equal(t, "1300001", house.ExternalID)
	assert.Equal(t, 45_000.0, house.Price)
	assert.Equal(t, models.CurrencyDOP, house.Currency)
	assert.Empty(t, house.Zone)
	assert.Equal(t, "Santiago", house.City)
	assert.Nil(t, house.Parking)
	require.NotNil(t, house.Area)
	assert.InDelta(t, 185.81, *house.Area, 1e-9)
	assert.Equal(t, "house", house.PropertyType)
	assert.Equal(t, models.TransactionRent, house.TransactionType)
	assert.Empty(t, house.Images)
}

func TestParseListingsHTML_NoCardSelector(t *testing.T) {
	site := supercasasConfig("https://www.supercasas.com")
	site.Selectors.Card = ""
	_, _, err := ParseListingsHTML(strings.NewReader("<html></html>"), site, santoDomingo, nil)
	assert.Error(t, err)
}

func TestParseListingsHTML_RegionCityFallback(t *testing.T) {
	site := supercasasConfig("https://www.supercasas.com")
	page := `<div id="bigsearch-results-inner-results"><li class="normal" ><a href="/x/77/"><div class="title1">Solar</div></a></li></div>`

	listings, hasNext, err := ParseListingsHTML(strings.NewReader(page), site, santoDomingo, nil)
	require.NoError(t, err)
	assert.False(t, hasNext)
	require.Len(t, listings, 1)
	assert.Equal(t, "77", listings[0].ExternalID)
	assert.Equal(t, "Santo Domingo", listings[0].City)
	assert.Equal(t, "land", listings[0].PropertyType)
	assert.Equal(t, "USD", listings[0].Currency)
	assert.Zero(t, listings[0].Price)
}

func TestHTMLHandler_ScrapePaginates(t *testing.T) {
	fixture := loadFixture(t, "supercasas_search.html")
	var (
		mu    sync.Mutex
		pages []string
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		pages = append(pages, r.URL.Query().Get("PagingPageSkip"))
		mu.Unlock()
		assert.Equal(t, "10095", r.URL.Query().Get("Locations"))
		if r.URL.Query().Get("PagingPageSkip") == "1" {
			w.Write(fixture)
			return
		}
		w.Write([]byte(`<html><body><div id="bigsearch-results-inner-results"></div></body></html>`))
	}))
	defer srv.Close()

	resume := newFakeResume()
	h := NewHandler(supercasasConfig(srv.URL), Deps{Client: srv.Client(), Resume: resume})
	require.IsType(t, &HTMLHandler{}, h)

	listings, err := h.Scrape(context.Background(), santoDomingo)
	require.NoError(t, err)
	assert.Len(t, listings, 2)
	mu.Lock()
	assert.Equal(t, []string{"1", "2"}, pages)
	mu.Unlock()
	assert.Equal(t, srv.URL+"/apartamentos-venta-piantini/1292845/", listings[0].URL)
	assert.Equal(t, []string{"supercasas/10095"}, resume.cleared)
}

func TestHTMLHandler_FailureRecordsResumePage(t *testing.T) {
	fixture := loadFixture(t, "supercasas_search.html")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("PagingPageSkip") {
		case "3":
			w.Write(fixture)
		default:
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	resume := newFakeResume()
	resume.pages["supercasas/10095"] = 3

	h := NewHandler(supercasasConfig(srv.URL), Deps{Client: srv.Client(), Resume: resume})
	listings, err := h.Scrape(context.Background(), santoDomingo)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page 4")
	assert.Len(t, listings, 2)
	assert.Equal(t, 4, resume.pages["supercasas/10095"])
	assert.Empty(t, resume.cleared)
}

func TestSearchURL(t *testing.T) {
	site := supercasasConfig("https://www.supercasas.com")
	site.Endpoints["search"] = "https://www.supercasas.com/buscar/?p={page}&t={type}&l={region}"

	u, err := searchURL(site, config.Region{Slug: "santo domingo", TransactionType: "sale"}, 2)
	require.NoError(t, err)
	assert.Equal(t, "https://www.supercasas.com/buscar/?p=2&t=sale&l=santo+domingo", u)

	delete(site.Endpoints, "search")
	_, err = searchURL(site, santoDomingo, 1)
	assert.Error(t, err)
}

type fakeResume struct {
	pages   map[string]int
	cleared []string
}

func newFakeResume() *fakeResume {
	return &fakeResume{pages: make(map[string]int)}
}

func (f *fakeResume) GetResumePage(key string) (int, error) { return f.pages[key], nil }

func (f *fakeResume) SetResumePage(key string, page int) error {
	f.pages[key] = page
	return nil
}

func (f *fakeResume) ClearResumePage(key string) error {
	delete(f.pages, key)
	f.cleared = append(f.cleared, key)
	return nil
}
