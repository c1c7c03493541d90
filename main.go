package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"go.uber.org/zap"

	"casas_scrooper/config"
	"casas_scrooper/dedup"
	"casas_scrooper/httputil"
	"casas_scrooper/location"
	"casas_scrooper/logging"
	"casas_scrooper/models"
	"casas_scrooper/scheduler"
	"casas_scrooper/scraper"
	"casas_scrooper/services"
	"casas_scrooper/storage"
	"casas_scrooper/workers"
)

var (
	scrapeNow = flag.Bool("scrape", false, "Run scrape once, then dedup, and exit")
	dedupNow  = flag.Bool("dedup", false, "Run dedup over stored listings once and exit")
	dedupFile = flag.String("dedup-file", "", "Deduplicate a JSON array of listings and print the canonical set (no database)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, logFile, err := logging.New(cfg.LogPath, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting casas_scrooper", zap.Int("sites", len(cfg.Sites)))
	for _, id := range sortedSiteIDs(cfg) {
		site := cfg.Sites[id]
		logger.Info("site loaded", zap.String("id", id), zap.String("name", site.Name), zap.String("handler", site.Handler), zap.Int("trust", site.Trust))
	}

	normalizer, err := buildNormalizer(cfg, logger)
	if err != nil {
		return err
	}
	deduplicator, err := buildDeduplicator(cfg, normalizer, logger)
	if err != nil {
		return err
	}

	var exporter services.Exporter
	if cfg.S3.Enabled() {
		uploader, err := storage.NewS3Uploader(ctx, cfg.S3)
		if err != nil {
			return fmt.Errorf("s3: %w", err)
		}
		exporter = uploader
		logger.Info("canonical exports enabled", zap.String("bucket", cfg.S3.Bucket))
	}

	if *dedupFile != "" {
		return dedupFromFile(ctx, *dedupFile, deduplicator, exporter, logger)
	}

	sqliteStore, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer sqliteStore.Close()
	logger.Info("sqlite database", zap.String("path", cfg.DBPath))

	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	pgStore, err := storage.NewPostgresStore(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pgStore.Close()
	logger.Info("connected to postgres", zap.String("url", maskConnectionString(cfg.Database.URL)))

	matchService := services.NewMatchService(pgStore, deduplicator.Grouper(), normalizer, logger)
	listingService := services.NewListingService(pgStore, matchService, normalizer, logger)
	dedupService := services.NewDedupService(deduplicator, pgStore, sqliteStore, exporter, logger)
	dedupWorker := workers.NewDedupWorker(dedupService, logger)

	client, err := httputil.NewScrapingClient(cfg.Proxy)
	if err != nil {
		return err
	}
	if cfg.Proxy.URL != "" {
		logger.Info("scraping through proxy", zap.String("proxy", maskConnectionString(cfg.Proxy.URL)))
	}

	orchestrator := scraper.NewOrchestrator(cfg, sqliteStore, listingService, scraper.Deps{
		Client:     client,
		Normalizer: normalizer,
		Resume:     sqliteStore,
		Logger:     logger.Named("scraper"),
	})
	defer orchestrator.Close()

	switch {
	case *scrapeNow:
		logger.Info("running scrape")
		if err := orchestrator.RunAll(ctx); err != nil {
			logger.Warn("scrape finished with errors", zap.Error(err))
		}
		_, err := dedupWorker.RunOnce(ctx)
		return err
	case *dedupNow:
		_, err := dedupWorker.RunOnce(ctx)
		return err
	}

	sched := scheduler.New(cfg.Scheduler, orchestrator, sqliteStore, dedupWorker, logger)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	go dedupWorker.Run(ctx, cfg.Dedup.Interval)
	logger.Info("dedup worker started", zap.Duration("interval", cfg.Dedup.Interval))

	logger.Info("daemon running, press Ctrl+C to stop")
	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

func buildNormalizer(cfg *config.Config, logger *zap.Logger) (*location.Normalizer, error) {
	if cfg.Dedup.TaxonomyPath == "" {
		return location.NewNormalizer(nil), nil
	}
	taxonomy, err := location.LoadTaxonomy(cfg.Dedup.TaxonomyPath)
	if err != nil {
		return nil, fmt.Errorf("load taxonomy: %w", err)
	}
	logger.Info("taxonomy loaded",
		zap.String("path", cfg.Dedup.TaxonomyPath),
		zap.Int("cities", taxonomy.CityCount()),
		zap.Int("zones", taxonomy.ZoneCount()))
	return location.NewNormalizer(taxonomy), nil
}

func buildDeduplicator(cfg *config.Config, normalizer *location.Normalizer, logger *zap.Logger) (*dedup.Deduplicator, error) {
	opts := dedup.DefaultOptions()
	opts.Threshold = cfg.Dedup.Threshold
	if cfg.Dedup.Workers > 0 {
		opts.Workers = cfg.Dedup.Workers
	}
	return dedup.New(normalizer, dedup.NewMerger(cfg.TrustRanking()), opts, logger.Named("dedup"))
}

// dedupFromFile runs one batch over a JSON file and writes the canonical
// listings to stdout.
func dedupFromFile(ctx context.Context, path string, d *dedup.Deduplicator, exporter services.Exporter, logger *zap.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var listings []*models.Listing
	if err := json.Unmarshal(data, &listings); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	svc := services.NewDedupService(d, nil, nil, exporter, logger)
	outcome, err := svc.RunListings(ctx, listings)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Stats    *models.DedupRun  `json:"stats"`
		Export   string            `json:"export_url,omitempty"`
		Listings []*models.Listing `json:"listings"`
	}{outcome.Run, outcome.ExportURL, outcome.Listings})
}

func sortedSiteIDs(cfg *config.Config) []string {
	ids := make([]string, 0, len(cfg.Sites))
	for id := range cfg.Sites {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// maskConnectionString masks the password in a URL-style connection string.
func maskConnectionString(connStr string) string {
	u, err := url.Parse(connStr)
	if err != nil || u.User == nil {
		return connStr
	}
	if _, ok := u.User.Password(); !ok {
		return connStr
	}
	return u.Redacted()
}
