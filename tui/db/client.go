package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "modernc.org/sqlite"
)

type Client struct {
	pg     *pgxpool.Pool // listings and canonical output
	sqlite *sql.DB       // run history, logs and the command queue the daemon polls
	ctx    context.Context
}

type SiteStats struct {
	SiteID         string
	LastRunAt      *time.Time
	LastRunStatus  *string
	TotalListings  int
	SuccessRate    float64
	AvgRunDuration int
	PendingResumes int
}

type ScrapeRun struct {
	ID            int64
	SiteID        string
	StartedAt     time.Time
	FinishedAt    *time.Time
	Status        string
	ListingsFound int
	ListingsNew   int
	ErrorsCount   int
}

type DedupRun struct {
	ID                string
	StartedAt         time.Time
	Status            string
	ListingsIn        int
	ListingsOut       int
	DuplicatesRemoved int
	DeduplicationRate string
	MergedClusters    int
}

type CanonicalListing struct {
	ID              string
	Title           string
	City            string
	Zone            string
	Price           float64
	Currency        string
	Area            *float64
	Bedrooms        *int
	Bathrooms       *int
	PropertyType    string
	TransactionType string
	URL             string
	Description     string
	IsMerged        bool
	SourceCount     int
	UpdatedAt       time.Time
}

// SourceListing is one scraped listing that fed a canonical row.
type SourceListing struct {
	Source     string
	ExternalID string
	URL        string
	Title      string
	Price      float64
	Currency   string
	LastSeen   time.Time
}

type RunLog struct {
	ID        int64
	RunID     string
	Timestamp time.Time
	Level     string
	Message   string
	Scope     string
}

type CityStats struct {
	City           string
	CanonicalCount int
	MergedCount    int
	SaleCount      int
	RentCount      int
}

func New(postgresURL, sqlitePath string) (*Client, error) {
	ctx := context.Background()

	pgPool, err := pgxpool.New(ctx, postgresURL)
	if err != nil {
		return nil, err
	}

	sqliteDB, err := sql.Open("sqlite", sqlitePath)
	if err != nil {
		pgPool.Close()
		return nil, err
	}

	return newClient(ctx, pgPool, sqliteDB), nil
}

func newClient(ctx context.Context, pg *pgxpool.Pool, sqliteDB *sql.DB) *Client {
	return &Client{pg: pg, sqlite: sqliteDB, ctx: ctx}
}

func (c *Client) Close() error {
	if c.pg != nil {
		c.pg.Close()
	}
	return c.sqlite.Close()
}

// =============================================================================
// SQLite: runs, stats, logs, commands
// =============================================================================

// GetSiteStats returns one row per site. Region resume markers share the
// site_stats table under "site/region" keys and are folded into PendingResumes.
func (c *Client) GetSiteStats() ([]SiteStats, error) {
	rows, err := c.sqlite.Query(`
		SELECT
			s.site_id,
			s.last_run_at,
			s.last_run_status,
			COALESCE(s.total_listings, 0),
			COALESCE(s.success_rate, 0),
			COALESCE(s.avg_run_duration_sec, 0),
			(SELECT COUNT(*) FROM site_stats r
				WHERE r.site_id LIKE s.site_id || '/%' AND r.scrape_resume_page > 0)
		FROM site_stats s
		WHERE s.site_id NOT LIKE '%/%'
		ORDER BY s.site_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []SiteStats
	for rows.Next() {
		var s SiteStats
		var lastRunAt, status sql.NullString
		err := rows.Scan(&s.SiteID, &lastRunAt, &status,
			&s.TotalListings, &s.SuccessRate, &s.AvgRunDuration, &s.PendingResumes)
		if err != nil {
			return nil, err
		}
		if t, ok := parseTime(lastRunAt.String); ok {
			s.LastRunAt = &t
		}
		if status.Valid && status.String != "" {
			s.LastRunStatus = &status.String
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

func (c *Client) GetRecentRuns(limit int) ([]ScrapeRun, error) {
	rows, err := c.sqlite.Query(`
		SELECT id, site_id, started_at, finished_at, COALESCE(status, ''),
			COALESCE(listings_found, 0), COALESCE(listings_new, 0), COALESCE(errors_count, 0)
		FROM scrape_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []ScrapeRun
	for rows.Next() {
		var r ScrapeRun
		var started, finished sql.NullString
		err := rows.Scan(&r.ID, &r.SiteID, &started, &finished, &r.Status,
			&r.ListingsFound, &r.ListingsNew, &r.ErrorsCount)
		if err != nil {
			return nil, err
		}
		r.StartedAt, _ = parseTime(started.String)
		if t, ok := parseTime(finished.String); ok {
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (c *Client) GetRecentDedupRuns(limit int) ([]DedupRun, error) {
	rows, err := c.sqlite.Query(`
		SELECT id, started_at, COALESCE(status, ''),
			COALESCE(listings_in, 0), COALESCE(listings_out, 0),
			COALESCE(duplicates_removed, 0), COALESCE(deduplication_rate, ''),
			COALESCE(merged_clusters, 0)
		FROM dedup_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []DedupRun
	for rows.Next() {
		var r DedupRun
		var started sql.NullString
		err := rows.Scan(&r.ID, &started, &r.Status, &r.ListingsIn, &r.ListingsOut,
			&r.DuplicatesRemoved, &r.DeduplicationRate, &r.MergedClusters)
		if err != nil {
			return nil, err
		}
		r.StartedAt, _ = parseTime(started.String)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRecentLogs returns the newest run log lines. An empty level or "ALL"
// disables the level filter.
func (c *Client) GetRecentLogs(limit int, level string) ([]RunLog, error) {
	query := `
		SELECT id, COALESCE(run_id, ''), timestamp, COALESCE(level, ''), COALESCE(message, ''), COALESCE(scope, '')
		FROM run_logs`
	args := []any{}
	if level != "" && !strings.EqualFold(level, "ALL") {
		query += ` WHERE UPPER(level) = UPPER(?)`
		args = append(args, level)
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := c.sqlite.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []RunLog
	for rows.Next() {
		var l RunLog
		var ts sql.NullString
		if err := rows.Scan(&l.ID, &l.RunID, &ts, &l.Level, &l.Message, &l.Scope); err != nil {
			return nil, err
		}
		l.Timestamp, _ = parseTime(ts.String)
		l.Level = strings.ToUpper(l.Level)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// SendCommand queues a command for the daemon's scheduler to pick up.
func (c *Client) SendCommand(command string, params map[string]string) error {
	raw := []byte("{}")
	if len(params) > 0 {
		var err error
		if raw, err = json.Marshal(params); err != nil {
			return err
		}
	}
	_, err := c.sqlite.Exec(`
		INSERT INTO commands (command, params, created_at)
		VALUES (?, ?, datetime('now'))
	`, command, string(raw))
	return err
}

func (c *Client) ScrapeNow() error {
	return c.SendCommand("scrape_now", nil)
}

func (c *Client) ScrapeSite(siteID string) error {
	return c.SendCommand("scrape_site", map[string]string{"site": siteID})
}

func (c *Client) DedupNow() error {
	return c.SendCommand("dedup_now", nil)
}

func (c *Client) Pause() error {
	return c.SendCommand("pause", nil)
}

func (c *Client) Resume() error {
	return c.SendCommand("resume", nil)
}

// =============================================================================
// Postgres: listings and canonical output
// =============================================================================

func (c *Client) GetListingCount() (int, error) {
	var count int
	err := c.pg.QueryRow(c.ctx, "SELECT COUNT(*) FROM listings").Scan(&count)
	return count, err
}

func (c *Client) GetCanonicalCount(mergedOnly bool) (int, error) {
	query := "SELECT COUNT(*) FROM canonical_listings"
	if mergedOnly {
		query += " WHERE is_merged"
	}
	var count int
	err := c.pg.QueryRow(c.ctx, query).Scan(&count)
	return count, err
}

func (c *Client) GetPendingMatchCount() (int, error) {
	var count int
	err := c.pg.QueryRow(c.ctx, "SELECT COUNT(*) FROM property_matches WHERE status = 'pending'").Scan(&count)
	return count, err
}

func (c *Client) GetCityStats() ([]CityStats, error) {
	rows, err := c.pg.Query(c.ctx, `
		SELECT
			COALESCE(NULLIF(city, ''), 'Desconocida') AS city,
			COUNT(*)::int,
			COUNT(*) FILTER (WHERE is_merged)::int,
			COUNT(*) FILTER (WHERE transaction_type = 'sale')::int,
			COUNT(*) FILTER (WHERE transaction_type = 'rent')::int
		FROM canonical_listings
		GROUP BY 1
		ORDER BY COUNT(*) DESC
		LIMIT 6
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []CityStats
	for rows.Next() {
		var s CityStats
		if err := rows.Scan(&s.City, &s.CanonicalCount, &s.MergedCount, &s.SaleCount, &s.RentCount); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

func (c *Client) GetCanonicalListings(limit, offset int, mergedOnly bool) ([]CanonicalListing, error) {
	query := `
		SELECT
			id,
			COALESCE(title, ''),
			COALESCE(city, ''),
			COALESCE(zone, ''),
			price,
			currency,
			area,
			bedrooms,
			bathrooms,
			COALESCE(property_type, ''),
			COALESCE(transaction_type, ''),
			COALESCE(url, ''),
			COALESCE(description, ''),
			is_merged,
			jsonb_array_length(source_ids)::int,
			updated_at
		FROM canonical_listings
	`
	if mergedOnly {
		query += ` WHERE is_merged`
	}
	query += ` ORDER BY updated_at DESC, id LIMIT $1 OFFSET $2`

	rows, err := c.pg.Query(c.ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []CanonicalListing
	for rows.Next() {
		var l CanonicalListing
		err := rows.Scan(&l.ID, &l.Title, &l.City, &l.Zone, &l.Price, &l.Currency,
			&l.Area, &l.Bedrooms, &l.Bathrooms, &l.PropertyType, &l.TransactionType,
			&l.URL, &l.Description, &l.IsMerged, &l.SourceCount, &l.UpdatedAt)
		if err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// GetSourceListings expands a canonical row's source_ids into the scraped
// listings behind it.
func (c *Client) GetSourceListings(canonicalID string) ([]SourceListing, error) {
	rows, err := c.pg.Query(c.ctx, `
		SELECT
			r.source,
			r.external_id,
			COALESCE(l.url, r.url, ''),
			COALESCE(l.title, ''),
			COALESCE(l.price, 0),
			COALESCE(l.currency, ''),
			COALESCE(l.last_seen, c.updated_at)
		FROM canonical_listings c
		CROSS JOIN LATERAL jsonb_to_recordset(c.source_ids) AS r(source text, external_id text, url text)
		LEFT JOIN listings l ON l.source = r.source AND l.external_id = r.external_id
		WHERE c.id = $1
		ORDER BY r.source
	`, canonicalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []SourceListing
	for rows.Next() {
		var l SourceListing
		err := rows.Scan(&l.Source, &l.ExternalID, &l.URL, &l.Title, &l.Price, &l.Currency, &l.LastSeen)
		if err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// The daemon writes DATETIME columns through go-sqlite3, which stores Go's
// time.Time String form; datetime('now') rows use the SQLite default.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05",
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	// time.Time.String appends a monotonic clock reading
	if i := strings.Index(s, " m="); i > 0 {
		s = s[:i]
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
