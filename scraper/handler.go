package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"casas_scrooper/config"
	"casas_scrooper/location"
	"casas_scrooper/models"
)

const defaultMaxPages = 50

type Handler interface {
	ID() string
	Scrape(ctx context.Context, region config.Region) ([]*models.Listing, error)
}

// ResumeStore remembers the page a failed scrape stopped at.
type ResumeStore interface {
	GetResumePage(key string) (int, error)
	SetResumePage(key string, page int) error
	ClearResumePage(key string) error
}

// Deps are shared by every handler.
type Deps struct {
	Client     *http.Client
	Normalizer *location.Normalizer
	Resume     ResumeStore
	Logger     *zap.Logger
}

func NewHandler(siteCfg *config.SiteConfig, deps Deps) Handler {
	if deps.Client == nil {
		deps.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if deps.Normalizer == nil {
		deps.Normalizer = location.NewNormalizer(nil)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	switch siteCfg.Handler {
	case "api":
		return NewAPIHandler(siteCfg, deps)
	case "browser":
		return NewBrowserHandler(siteCfg, deps)
	default:
		return NewHTMLHandler(siteCfg, deps)
	}
}

// fetchPage returns one page of listings and whether another page follows.
type fetchPage func(ctx context.Context, region config.Region, page int) ([]*models.Listing, bool, error)

// pager walks result pages for one region, honouring the site rate limit and
// page cap. A failure records the page so the next run resumes there.
type pager struct {
	cfg    *config.SiteConfig
	resume ResumeStore
	logger *zap.Logger
}

func (p *pager) run(ctx context.Context, region config.Region, fetch fetchPage) ([]*models.Listing, error) {
	key := p.cfg.ID + "/" + region.Slug
	start := 1
	if p.resume != nil {
		if page, err := p.resume.GetResumePage(key); err == nil && page > 1 {
			start = page
			p.logger.Info("resuming scrape", zap.String("site", p.cfg.ID), zap.String("region", region.Slug), zap.Int("page", page))
		}
	}

	maxPages := p.cfg.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	delay := time.Duration(p.cfg.RateLimitMS) * time.Millisecond

	var all []*models.Listing
	for page := start; page < start+maxPages; page++ {
		if page > start && delay > 0 {
			select {
			case <-ctx.Done():
				return all, ctx.Err()
			case <-time.After(delay):
			}
		}

		listings, hasNext, err := fetch(ctx, region, page)
		if err != nil {
			if p.resume != nil {
				p.resume.SetResumePage(key, page)
			}
			return all, fmt.Errorf("page %d: %w", page, err)
		}

		all = append(all, listings...)
		p.logger.Debug("scraped page",
			zap.String("site", p.cfg.ID),
			zap.String("region", region.Slug),
			zap.Int("page", page),
			zap.Int("listings", len(listings)),
			zap.Int("total", len(all)))

		if len(listings) == 0 || !hasNext {
			break
		}
	}

	if p.resume != nil {
		p.resume.ClearResumePage(key)
	}
	return all, nil
}

// searchURL fills the {page}, {region} and {type} placeholders of the site's
// search endpoint.
func searchURL(cfg *config.SiteConfig, region config.Region, page int) (string, error) {
	tmpl, ok := cfg.Endpoints["search"]
	if !ok || tmpl == "" {
		return "", fmt.Errorf("site %s has no search endpoint", cfg.ID)
	}
	r := strings.NewReplacer(
		"{page}", strconv.Itoa(page),
		"{region}", url.QueryEscape(region.Slug),
		"{type}", url.QueryEscape(region.TransactionType),
	)
	return r.Replace(tmpl), nil
}

// absoluteURL resolves href against the site's base endpoint.
func absoluteURL(cfg *config.SiteConfig, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	base, err := url.Parse(cfg.Endpoints["base"])
	if err != nil || base.Scheme == "" {
		return href
	}
	return base.ResolveReference(ref).String()
}

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
