package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultSitesDir = "config/sites"

type Config struct {
	Proxy     ProxyConfig
	Database  DatabaseConfig
	Scheduler SchedulerConfig
	Scraper   ScraperConfig
	Dedup     DedupConfig
	S3        S3Config
	DBPath    string
	LogLevel  string
	LogPath   string
	Sites     map[string]*SiteConfig
}

type ProxyConfig struct {
	URL string
}

type DatabaseConfig struct {
	URL string
}

type SchedulerConfig struct {
	Interval time.Duration
	Cron     string
}

type ScraperConfig struct {
	DelayMS int
}

type DedupConfig struct {
	Threshold    float64
	Workers      int
	Interval     time.Duration
	TaxonomyPath string
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// Enabled reports whether canonical exports should be uploaded.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

type SiteConfig struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Handler     string            `yaml:"handler"`
	Trust       int               `yaml:"trust"`
	Currency    string            `yaml:"currency"`
	RateLimitMS int               `yaml:"rate_limit_ms"`
	MaxPages    int               `yaml:"max_pages"`
	Endpoints   map[string]string `yaml:"endpoints"`
	Selectors   Selectors         `yaml:"selectors"`
	Regions     map[string]Region `yaml:"regions"`
}

// Selectors are the CSS selectors the html and browser handlers use to read a
// search results page. Card-level selectors are relative to Card.
type Selectors struct {
	Card         string `yaml:"card"`
	ID           string `yaml:"id"`
	IDAttr       string `yaml:"id_attr"`
	Link         string `yaml:"link"`
	Title        string `yaml:"title"`
	Price        string `yaml:"price"`
	Location     string `yaml:"location"`
	Bedrooms     string `yaml:"bedrooms"`
	Bathrooms    string `yaml:"bathrooms"`
	Parking      string `yaml:"parking"`
	Area         string `yaml:"area"`
	PropertyType string `yaml:"property_type"`
	Image        string `yaml:"image"`
	Description  string `yaml:"description"`
	NextPage     string `yaml:"next_page"`
}

type Region struct {
	Slug            string `yaml:"slug"`
	City            string `yaml:"city"`
	TransactionType string `yaml:"transaction_type"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Proxy: ProxyConfig{
			URL: os.Getenv("PROXY_URL"),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Scheduler: SchedulerConfig{
			Cron: os.Getenv("SCRAPE_CRON"),
		},
		Scraper: ScraperConfig{
			DelayMS: getEnvInt("SCRAPE_DELAY_MS", 500),
		},
		Dedup: DedupConfig{
			Threshold:    getEnvFloat("DEDUP_THRESHOLD", 0.75),
			Workers:      getEnvInt("DEDUP_WORKERS", 0),
			Interval:     getEnvDuration("DEDUP_INTERVAL", 0),
			TaxonomyPath: os.Getenv("TAXONOMY_PATH"),
		},
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		},
		DBPath:   getEnv("DB_PATH", "scraper.db"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogPath:  getEnv("LOG_PATH", "daemon.log"),
		Sites:    make(map[string]*SiteConfig),
	}

	cfg.Scheduler.Interval = getEnvDuration("SCRAPE_INTERVAL", 0)

	if err := cfg.LoadSiteConfigs(getEnv("SITES_DIR", defaultSitesDir)); err != nil {
		return nil, err
	}
	for _, site := range cfg.Sites {
		if site.RateLimitMS <= 0 {
			site.RateLimitMS = cfg.Scraper.DelayMS
		}
	}

	return cfg, nil
}

// LoadSiteConfigs reads every *.yaml file in dir. A missing dir is not an error.
func (c *Config) LoadSiteConfigs(configDir string) error {
	entries, err := os.ReadDir(configDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		path := filepath.Join(configDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		var site SiteConfig
		if err := yaml.Unmarshal(data, &site); err != nil {
			return err
		}

		c.Sites[site.ID] = &site
	}

	return nil
}

// TrustRanking maps source id to the trust declared in its site config.
// Returns nil when no site declares one, so callers fall back to the default.
func (c *Config) TrustRanking() map[string]int {
	var ranking map[string]int
	for id, site := range c.Sites {
		if site.Trust == 0 {
			continue
		}
		if ranking == nil {
			ranking = make(map[string]int)
		}
		ranking[strings.ToLower(id)] = site.Trust
	}
	return ranking
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
