package scraper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"casas_scrooper/config"
	"casas_scrooper/models"
	"casas_scrooper/services"
	"casas_scrooper/storage"
)

// ListingIngester persists one scraped listing.
type ListingIngester interface {
	Ingest(ctx context.Context, l *models.Listing) (*services.ProcessResult, error)
}

// RunStore records scrape runs and their logs.
type RunStore interface {
	CreateRun(run *models.ScrapeRun) (int64, error)
	UpdateRun(run *models.ScrapeRun) error
	UpdateSiteStats(siteID string) error
	Log(runID string, level models.LogLevel, message, scope string) error
}

type Orchestrator struct {
	cfg      *config.Config
	runs     RunStore
	ingester ListingIngester
	handlers map[string]Handler
	logger   *zap.Logger

	mu     sync.Mutex
	paused bool
}

func NewOrchestrator(cfg *config.Config, runs RunStore, ingester ListingIngester, deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	handlers := make(map[string]Handler, len(cfg.Sites))
	for id, siteCfg := range cfg.Sites {
		siteDeps := deps
		siteDeps.Logger = deps.Logger.With(zap.String("site", id))
		handlers[id] = NewHandler(siteCfg, siteDeps)
	}
	return newOrchestrator(cfg, runs, ingester, handlers, deps.Logger)
}

func newOrchestrator(cfg *config.Config, runs RunStore, ingester ListingIngester, handlers map[string]Handler, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:      cfg,
		runs:     runs,
		ingester: ingester,
		handlers: handlers,
		logger:   logger,
	}
}

func (o *Orchestrator) RunAll(ctx context.Context) error {
	if o.IsPaused() {
		o.logger.Info("scraper is paused, skipping run")
		return nil
	}

	var errs []error
	for _, siteID := range o.SiteIDs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.RunSite(ctx, siteID, ""); err != nil {
			o.logger.Error("site run failed", zap.String("site", siteID), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", siteID, err))
		}
	}
	return errors.Join(errs...)
}

// RunSite scrapes every region of a site, or only regionID when it is set.
// Listings from a region that fails part-way are still ingested.
func (o *Orchestrator) RunSite(ctx context.Context, siteID, regionID string) error {
	siteCfg, ok := o.cfg.Sites[siteID]
	if !ok {
		return fmt.Errorf("unknown site: %s", siteID)
	}
	handler, ok := o.handlers[siteID]
	if !ok {
		return fmt.Errorf("no handler for site: %s", siteID)
	}

	regionIDs := sortedRegionIDs(siteCfg)
	if regionID != "" {
		if _, ok := siteCfg.Regions[regionID]; !ok {
			return fmt.Errorf("unknown region %s for site %s", regionID, siteID)
		}
		regionIDs = []string{regionID}
	}

	run := &models.ScrapeRun{
		SiteID:    siteID,
		StartedAt: time.Now(),
		Status:    models.RunStatusRunning,
	}
	if o.runs != nil {
		id, err := o.runs.CreateRun(run)
		if err != nil {
			return fmt.Errorf("create run: %w", err)
		}
		run.ID = id
	}

	o.log(run, models.LogLevelInfo, fmt.Sprintf("Starting scrape for %s", siteCfg.Name))

	stats := &services.ProcessStats{}
	var errs []error

	for _, id := range regionIDs {
		region := siteCfg.Regions[id]
		o.log(run, models.LogLevelInfo, fmt.Sprintf("Scraping region: %s", id))

		listings, scrapeErr := handler.Scrape(ctx, region)
		run.ListingsFound += len(listings)

		for _, l := range listings {
			result, err := o.ingester.Ingest(ctx, l)
			if err != nil {
				o.log(run, models.LogLevelError, fmt.Sprintf("Ingest error for %s: %v", l.ExternalID, err))
				stats.Errors++
				continue
			}
			stats.Aggregate(result)
		}

		if scrapeErr != nil {
			o.log(run, models.LogLevelError, fmt.Sprintf("Scrape error for %s: %v", id, scrapeErr))
			errs = append(errs, fmt.Errorf("region %s: %w", id, scrapeErr))
			stats.Errors++
			continue
		}
		o.log(run, models.LogLevelInfo, fmt.Sprintf("Region %s: %d listings", id, len(listings)))
	}

	now := time.Now()
	run.FinishedAt = &now
	run.ListingsNew = stats.ListingsNew
	run.ErrorsCount = stats.Errors
	run.Status = models.RunStatusCompleted
	if len(errs) > 0 {
		run.Status = models.RunStatusFailed
	}

	o.log(run, models.LogLevelInfo, fmt.Sprintf("Finished: %d found, %d new, %d matches, %d errors",
		run.ListingsFound, stats.ListingsNew, stats.Matches, stats.Errors))

	if o.runs != nil {
		if err := o.runs.UpdateRun(run); err != nil {
			o.logger.Warn("failed to update run", zap.Int64("run_id", run.ID), zap.Error(err))
		}
		if err := o.runs.UpdateSiteStats(siteID); err != nil {
			o.logger.Warn("failed to update site stats", zap.String("site", siteID), zap.Error(err))
		}
	}

	return errors.Join(errs...)
}

// HandleCommand executes a scrape command queued in the local store. Commands
// for other components are ignored.
func (o *Orchestrator) HandleCommand(ctx context.Context, cmd *models.Command) error {
	params, err := storage.ParseCommandParams(cmd)
	if err != nil {
		return err
	}

	switch cmd.Command {
	case models.CmdScrapeNow:
		return o.RunAll(ctx)
	case models.CmdScrapeSite:
		if params.Site != "" {
			return o.RunSite(ctx, params.Site, params.Region)
		}
		return o.RunAll(ctx)
	case models.CmdPause:
		o.setPaused(true)
		o.logger.Info("scraper paused")
	case models.CmdResume:
		o.setPaused(false)
		o.logger.Info("scraper resumed")
	}
	return nil
}

func (o *Orchestrator) IsPaused() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.paused
}

func (o *Orchestrator) setPaused(paused bool) {
	o.mu.Lock()
	o.paused = paused
	o.mu.Unlock()
}

func (o *Orchestrator) SiteIDs() []string {
	ids := make([]string, 0, len(o.cfg.Sites))
	for id := range o.cfg.Sites {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close releases handlers that hold external resources such as a browser.
func (o *Orchestrator) Close() {
	for _, h := range o.handlers {
		if c, ok := h.(interface{ Close() }); ok {
			c.Close()
		}
	}
}

func (o *Orchestrator) log(run *models.ScrapeRun, level models.LogLevel, message string) {
	fields := []zap.Field{zap.String("site", run.SiteID), zap.Int64("run_id", run.ID)}
	switch level {
	case models.LogLevelError:
		o.logger.Error(message, fields...)
	case models.LogLevelWarn:
		o.logger.Warn(message, fields...)
	default:
		o.logger.Info(message, fields...)
	}
	if o.runs != nil {
		o.runs.Log(strconv.FormatInt(run.ID, 10), level, message, run.SiteID)
	}
}

func sortedRegionIDs(site *config.SiteConfig) []string {
	ids := make([]string, 0, len(site.Regions))
	for id := range site.Regions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
