package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"casas_scrooper/config"
	"casas_scrooper/location"
	"casas_scrooper/models"
)

// HTMLHandler scrapes server-rendered search result pages using the CSS
// selectors from the site config.
type HTMLHandler struct {
	cfg        *config.SiteConfig
	client     *http.Client
	normalizer *location.Normalizer
	logger     *zap.Logger
	pager      *pager
}

func NewHTMLHandler(cfg *config.SiteConfig, deps Deps) *HTMLHandler {
	return &HTMLHandler{
		cfg:        cfg,
		client:     deps.Client,
		normalizer: deps.Normalizer,
		logger:     deps.Logger,
		pager:      &pager{cfg: cfg, resume: deps.Resume, logger: deps.Logger},
	}
}

func (h *HTMLHandler) ID() string {
	return h.cfg.ID
}

func (h *HTMLHandler) Scrape(ctx context.Context, region config.Region) ([]*models.Listing, error) {
	return h.pager.run(ctx, region, h.fetchPage)
}

func (h *HTMLHandler) fetchPage(ctx context.Context, region config.Region, page int) ([]*models.Listing, bool, error) {
	u, err := searchURL(h.cfg, region, page)
	if err != nil {
		return nil, false, err
	}

	body, err := get(ctx, h.client, u, "text/html")
	if err != nil {
		return nil, false, err
	}
	defer body.Close()

	return ParseListingsHTML(body, h.cfg, region, h.normalizer)
}

// get issues a GET and returns the body of a 200 response.
func get(ctx context.Context, client *http.Client, u, accept string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "es-DO,es;q=0.9")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: status %d: %s", u, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return resp.Body, nil
}

// ParseListingsHTML extracts listings from one search result page. The bool
// reports whether the page links to a next page.
func ParseListingsHTML(r io.Reader, site *config.SiteConfig, region config.Region, normalizer *location.Normalizer) ([]*models.Listing, bool, error) {
	if site.Selectors.Card == "" {
		return nil, false, fmt.Errorf("site %s has no card selector", site.ID)
	}
	if normalizer == nil {
		normalizer = location.NewNormalizer(nil)
	}

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, false, fmt.Errorf("parse html: %w", err)
	}

	var listings []*models.Listing
	doc.Find(site.Selectors.Card).Each(func(_ int, card *goquery.Selection) {
		if l := parseCard(card, site, region, normalizer); l != nil {
			listings = append(listings, l)
		}
	})

	hasNext := site.Selectors.NextPage != "" && doc.Find(site.Selectors.NextPage).Length() > 0
	return listings, hasNext, nil
}

func parseCard(card *goquery.Selection, site *config.SiteConfig, region config.Region, normalizer *location.Normalizer) *models.Listing {
	sel := site.Selectors
	text := func(selector string) string {
		if selector == "" {
			return ""
		}
		return strings.Join(strings.Fields(card.Find(selector).First().Text()), " ")
	}

	externalID := cardID(card, sel)
	if externalID == "" {
		return nil
	}

	l := &models.Listing{
		Source:     site.ID,
		ExternalID: externalID,
		Title:      text(sel.Title),
	}

	if sel.Link != "" {
		if href, ok := card.Find(sel.Link).First().Attr("href"); ok {
			l.URL = absoluteURL(site, href)
		}
	}

	priceText := text(sel.Price)
	if price, currency, ok := ParsePrice(priceText, site.Currency); ok {
		l.Price = price
		l.Currency = currency
	} else {
		l.Currency = currency
	}

	l.Zone, l.City = SplitLocation(text(sel.Location), normalizer)
	if l.City == "" {
		l.City = region.City
	}

	l.Bedrooms = ParseCount(text(sel.Bedrooms))
	l.Bathrooms = ParseCount(text(sel.Bathrooms))
	l.Parking = ParseCount(text(sel.Parking))
	l.Area = ParseArea(text(sel.Area))

	l.PropertyType = DetectPropertyType(text(sel.PropertyType))
	if l.PropertyType == "" {
		l.PropertyType = DetectPropertyType(l.Title)
	}
	l.TransactionType = DetectTransaction(l.Title+" "+priceText, region.TransactionType)

	if sel.Image != "" {
		card.Find(sel.Image).Each(func(_ int, img *goquery.Selection) {
			src := img.AttrOr("data-src", img.AttrOr("src", ""))
			if src = absoluteURL(site, src); src != "" {
				l.Images = append(l.Images, src)
			}
		})
	}

	if desc := text(sel.Description); desc != "" {
		l.Description = &desc
	}

	return l
}

// cardID reads the listing id from the configured element attribute. An href
// yields its last path segment.
func cardID(card *goquery.Selection, sel config.Selectors) string {
	node := card
	if sel.ID != "" {
		node = card.Find(sel.ID).First()
	}
	attr := sel.IDAttr
	if attr == "" {
		attr = "data-id"
	}

	raw := strings.TrimSpace(node.AttrOr(attr, ""))
	if raw == "" || attr != "href" {
		return raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	seg := path.Base(strings.TrimRight(u.Path, "/"))
	if seg == "." || seg == "/" {
		return ""
	}
	return seg
}
