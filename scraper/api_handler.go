package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"casas_scrooper/config"
	"casas_scrooper/location"
	"casas_scrooper/models"
)

// APIHandler scrapes sites that expose a paged JSON search endpoint.
type APIHandler struct {
	cfg        *config.SiteConfig
	client     *http.Client
	normalizer *location.Normalizer
	logger     *zap.Logger
	pager      *pager
}

func NewAPIHandler(cfg *config.SiteConfig, deps Deps) *APIHandler {
	return &APIHandler{
		cfg:        cfg,
		client:     deps.Client,
		normalizer: deps.Normalizer,
		logger:     deps.Logger,
		pager:      &pager{cfg: cfg, resume: deps.Resume, logger: deps.Logger},
	}
}

func (h *APIHandler) ID() string {
	return h.cfg.ID
}

func (h *APIHandler) Scrape(ctx context.Context, region config.Region) ([]*models.Listing, error) {
	return h.pager.run(ctx, region, h.fetchPage)
}

func (h *APIHandler) fetchPage(ctx context.Context, region config.Region, page int) ([]*models.Listing, bool, error) {
	u, err := searchURL(h.cfg, region, page)
	if err != nil {
		return nil, false, err
	}

	body, err := get(ctx, h.client, u, "application/json")
	if err != nil {
		return nil, false, err
	}
	defer body.Close()

	return ParseListingsJSON(body, h.cfg, region, h.normalizer)
}

// apiSearchResponse is the paged listing payload of the classifieds API.
type apiSearchResponse struct {
	Data []apiListing `json:"data"`
	Meta struct {
		Page       int `json:"page"`
		TotalPages int `json:"total_pages"`
	} `json:"meta"`
}

type apiListing struct {
	ID    json.RawMessage `json:"id"`
	URL   string          `json:"url"`
	Title string          `json:"title"`
	Price struct {
		Amount   float64 `json:"amount"`
		Currency string  `json:"currency"`
		Display  string  `json:"display"`
	} `json:"price"`
	Location struct {
		City   string `json:"city"`
		Sector string `json:"sector"`
	} `json:"location"`
	Attributes struct {
		Bedrooms     *int     `json:"bedrooms"`
		Bathrooms    *int     `json:"bathrooms"`
		Parking      *int     `json:"parking"`
		Area         *float64 `json:"area"`
		AreaUnit     string   `json:"area_unit"`
		PropertyType string   `json:"property_type"`
		Transaction  string   `json:"transaction"`
	} `json:"attributes"`
	Images      []string `json:"images"`
	Description string   `json:"description"`
}

// ParseListingsJSON decodes one page of the classifieds API. The bool reports
// whether more pages follow.
func ParseListingsJSON(r io.Reader, site *config.SiteConfig, region config.Region, normalizer *location.Normalizer) ([]*models.Listing, bool, error) {
	if normalizer == nil {
		normalizer = location.NewNormalizer(nil)
	}

	var resp apiSearchResponse
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, false, fmt.Errorf("decode %s response: %w", site.ID, err)
	}

	listings := make([]*models.Listing, 0, len(resp.Data))
	for _, item := range resp.Data {
		id := strings.Trim(strings.TrimSpace(string(item.ID)), `"`)
		if id == "" || id == "null" {
			continue
		}

		l := &models.Listing{
			Source:     site.ID,
			ExternalID: id,
			URL:        absoluteURL(site, item.URL),
			Title:      strings.TrimSpace(item.Title),
			City:       strings.TrimSpace(item.Location.City),
			Zone:       strings.TrimSpace(item.Location.Sector),
			Bedrooms:   item.Attributes.Bedrooms,
			Bathrooms:  item.Attributes.Bathrooms,
			Parking:    item.Attributes.Parking,
			Images:     item.Images,
		}

		l.Price, l.Currency = item.Price.Amount, strings.ToUpper(strings.TrimSpace(item.Price.Currency))
		if l.Price == 0 && item.Price.Display != "" {
			if price, currency, ok := ParsePrice(item.Price.Display, site.Currency); ok {
				l.Price, l.Currency = price, currency
			}
		}
		if l.Currency == "" {
			l.Currency = strings.ToUpper(site.Currency)
		}

		if a := item.Attributes.Area; a != nil && *a > 0 {
			area := *a
			if unit := strings.ToLower(item.Attributes.AreaUnit); strings.HasPrefix(unit, "ft") || strings.HasPrefix(unit, "pies") {
				area = sqFtToSqM(area)
			}
			l.Area = &area
		}

		if l.City == "" && l.Zone != "" {
			l.Zone, l.City = SplitLocation(l.Zone, normalizer)
		}
		if l.City == "" {
			l.City = region.City
		}

		l.PropertyType = DetectPropertyType(item.Attributes.PropertyType)
		if l.PropertyType == "" {
			l.PropertyType = DetectPropertyType(l.Title)
		}
		l.TransactionType = DetectTransaction(item.Attributes.Transaction+" "+l.Title, region.TransactionType)

		if desc := strings.TrimSpace(item.Description); desc != "" {
			l.Description = &desc
		}

		listings = append(listings, l)
	}

	hasNext := resp.Meta.TotalPages > resp.Meta.Page && len(resp.Data) > 0
	return listings, hasNext, nil
}
