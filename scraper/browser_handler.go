package scraper

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"casas_scrooper/config"
	"casas_scrooper/location"
	"casas_scrooper/models"
)

// BrowserHandler renders search pages in Chromium for sites whose results are
// built client-side, then parses the rendered HTML with the site selectors.
type BrowserHandler struct {
	cfg        *config.SiteConfig
	normalizer *location.Normalizer
	logger     *zap.Logger
	pager      *pager

	mu          sync.Mutex
	pw          *playwright.Playwright
	context     playwright.BrowserContext
	page        playwright.Page
	initialized bool
}

func NewBrowserHandler(cfg *config.SiteConfig, deps Deps) *BrowserHandler {
	return &BrowserHandler{
		cfg:        cfg,
		normalizer: deps.Normalizer,
		logger:     deps.Logger,
		pager:      &pager{cfg: cfg, resume: deps.Resume, logger: deps.Logger},
	}
}

func (h *BrowserHandler) ID() string {
	return h.cfg.ID
}

func (h *BrowserHandler) Scrape(ctx context.Context, region config.Region) ([]*models.Listing, error) {
	if err := h.ensureBrowser(); err != nil {
		return nil, err
	}
	defer h.Close()

	return h.pager.run(ctx, region, h.fetchPage)
}

func (h *BrowserHandler) ensureBrowser() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.initialized {
		return nil
	}

	var err error
	h.pw, err = playwright.Run()
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	cwd, _ := os.Getwd()
	userDataDir := filepath.Join(cwd, "browser_data", h.cfg.ID)
	h.context, err = h.pw.Chromium.LaunchPersistentContext(userDataDir, playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless:  playwright.Bool(true),
		UserAgent: playwright.String(userAgent),
		Locale:    playwright.String("es-DO"),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	})
	if err != nil {
		h.pw.Stop()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	h.page, err = h.context.NewPage()
	if err != nil {
		h.context.Close()
		h.pw.Stop()
		return fmt.Errorf("failed to create page: %w", err)
	}

	h.initialized = true
	return nil
}

func (h *BrowserHandler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.page != nil {
		h.page.Close()
		h.page = nil
	}
	if h.context != nil {
		h.context.Close()
		h.context = nil
	}
	if h.pw != nil {
		h.pw.Stop()
		h.pw = nil
	}
	h.initialized = false
}

func (h *BrowserHandler) fetchPage(ctx context.Context, region config.Region, page int) ([]*models.Listing, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	u, err := searchURL(h.cfg, region, page)
	if err != nil {
		return nil, false, err
	}

	h.mu.Lock()
	p := h.page
	h.mu.Unlock()
	if p == nil {
		return nil, false, fmt.Errorf("browser not started")
	}

	if _, err := p.Goto(u, playwright.PageGotoOptions{
		Timeout:   playwright.Float(60000),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return nil, false, fmt.Errorf("navigate %s: %w", u, err)
	}

	h.handleConsent(p)
	h.simulateHumanBehavior(p)

	if err := p.Locator(h.cfg.Selectors.Card).First().WaitFor(playwright.LocatorWaitForOptions{
		Timeout: playwright.Float(20000),
	}); err != nil {
		content, _ := p.Content()
		if trigger := detectBlock(content); trigger != "" {
			return nil, false, fmt.Errorf("blocked by %q on page %d", trigger, page)
		}
		h.logger.Debug("no listing cards rendered", zap.String("site", h.cfg.ID), zap.Int("page", page))
		return nil, false, nil
	}

	content, err := p.Content()
	if err != nil {
		return nil, false, fmt.Errorf("read content: %w", err)
	}

	return ParseListingsHTML(strings.NewReader(content), h.cfg, region, h.normalizer)
}

func (h *BrowserHandler) simulateHumanBehavior(page playwright.Page) {
	page.Mouse().Move(float64(300+rand.Intn(400)), float64(200+rand.Intn(300)))
	page.WaitForTimeout(float64(200 + rand.Intn(300)))
	page.Evaluate(fmt.Sprintf(`window.scrollBy(0, %d)`, 100+rand.Intn(300)))
}

func (h *BrowserHandler) handleConsent(page playwright.Page) {
	consentSelectors := []string{
		"button:has-text('Aceptar')",
		"button:has-text('Acepto')",
		"button:has-text('Entendido')",
		"button[id*='accept']",
		"button[class*='accept']",
		"button[class*='consent']",
		"#didomi-notice-agree-button",
		"button:has-text('Accept')",
	}

	for _, selector := range consentSelectors {
		btn := page.Locator(selector).First()
		if visible, _ := btn.IsVisible(); visible {
			h.logger.Debug("clicking consent button", zap.String("selector", selector))
			btn.Click()
			page.WaitForTimeout(1000)
			break
		}
	}
}

var blockTriggers = []string{
	"Access Denied",
	"This request was blocked",
	"Attention Required! | Cloudflare",
	"cf-challenge",
	"captcha",
}

// detectBlock returns the anti-bot marker found in content, if any.
func detectBlock(content string) string {
	for _, t := range blockTriggers {
		if strings.Contains(content, t) {
			return t
		}
	}
	return ""
}
