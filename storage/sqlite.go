package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"casas_scrooper/models"
)

// SQLiteStore holds operational state: run history, logs, control commands
// and per-site progress.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scrape_runs (
		id INTEGER PRIMARY KEY,
		site_id TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		listings_found INTEGER,
		listings_new INTEGER,
		errors_count INTEGER
	);

	CREATE TABLE IF NOT EXISTS dedup_runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		listings_in INTEGER DEFAULT 0,
		listings_invalid INTEGER DEFAULT 0,
		listings_out INTEGER DEFAULT 0,
		duplicates_removed INTEGER DEFAULT 0,
		deduplication_rate TEXT,
		buckets INTEGER DEFAULT 0,
		largest_bucket INTEGER DEFAULT 0,
		merged_clusters INTEGER DEFAULT 0,
		error_message TEXT
	);

	CREATE TABLE IF NOT EXISTS run_logs (
		id INTEGER PRIMARY KEY,
		run_id TEXT,
		timestamp DATETIME,
		level TEXT,
		message TEXT,
		scope TEXT
	);

	CREATE TABLE IF NOT EXISTS site_stats (
		site_id TEXT PRIMARY KEY,
		last_run_at DATETIME,
		last_run_status TEXT,
		total_listings INTEGER,
		success_rate REAL,
		avg_run_duration_sec INTEGER,
		scrape_resume_page INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY,
		command TEXT,
		params JSON,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		processed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_commands_pending ON commands(processed_at) WHERE processed_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_logs_run ON run_logs(run_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON scrape_runs(status, started_at);
	CREATE INDEX IF NOT EXISTS idx_dedup_runs_started ON dedup_runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// Scrape Runs
// =============================================================================

func (s *SQLiteStore) CreateRun(run *models.ScrapeRun) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO scrape_runs (site_id, started_at, status, listings_found, listings_new, errors_count)
		VALUES (?, ?, ?, 0, 0, 0)`,
		run.SiteID, run.StartedAt, run.Status)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) UpdateRun(run *models.ScrapeRun) error {
	_, err := s.db.Exec(`
		UPDATE scrape_runs SET finished_at = ?, status = ?, listings_found = ?,
			listings_new = ?, errors_count = ?
		WHERE id = ?`,
		run.FinishedAt, run.Status, run.ListingsFound, run.ListingsNew, run.ErrorsCount, run.ID)
	return err
}

func (s *SQLiteStore) GetLastRunTime(siteID string) (time.Time, error) {
	var lastRun time.Time
	err := s.db.QueryRow(`
		SELECT started_at FROM scrape_runs
		WHERE site_id = ? AND status = 'completed'
		ORDER BY started_at DESC LIMIT 1`, siteID).Scan(&lastRun)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	return lastRun, err
}

// =============================================================================
// Dedup Runs
// =============================================================================

func (s *SQLiteStore) CreateDedupRun(run *models.DedupRun) error {
	_, err := s.db.Exec(`
		INSERT INTO dedup_runs (id, started_at, status, listings_in)
		VALUES (?, ?, ?, ?)`,
		run.ID, run.StartedAt, run.Status, run.ListingsIn)
	return err
}

func (s *SQLiteStore) FinishDedupRun(run *models.DedupRun) error {
	_, err := s.db.Exec(`
		UPDATE dedup_runs SET finished_at = ?, status = ?, listings_in = ?, listings_invalid = ?,
			listings_out = ?, duplicates_removed = ?, deduplication_rate = ?, buckets = ?,
			largest_bucket = ?, merged_clusters = ?, error_message = ?
		WHERE id = ?`,
		run.FinishedAt, run.Status, run.ListingsIn, run.ListingsInvalid,
		run.ListingsOut, run.DuplicatesRemoved, run.DeduplicationRate, run.Buckets,
		run.LargestBucket, run.MergedClusters, run.ErrorMessage, run.ID)
	return err
}

func (s *SQLiteStore) GetDedupRun(id string) (*models.DedupRun, error) {
	var run models.DedupRun
	var rate, errMsg sql.NullString
	err := s.db.QueryRow(`
		SELECT id, started_at, finished_at, status, listings_in, listings_invalid, listings_out,
			duplicates_removed, deduplication_rate, buckets, largest_bucket, merged_clusters, error_message
		FROM dedup_runs WHERE id = ?`, id).Scan(
		&run.ID, &run.StartedAt, &run.FinishedAt, &run.Status, &run.ListingsIn, &run.ListingsInvalid,
		&run.ListingsOut, &run.DuplicatesRemoved, &rate, &run.Buckets, &run.LargestBucket,
		&run.MergedClusters, &errMsg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	run.DeduplicationRate = rate.String
	run.ErrorMessage = errMsg.String
	return &run, nil
}

// =============================================================================
// Logs
// =============================================================================

func (s *SQLiteStore) Log(runID string, level models.LogLevel, message, scope string) error {
	_, err := s.db.Exec(`
		INSERT INTO run_logs (run_id, timestamp, level, message, scope)
		VALUES (?, ?, ?, ?, ?)`,
		runID, time.Now(), level, message, scope)
	return err
}

func (s *SQLiteStore) GetRunLogs(runID string) ([]models.RunLog, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, timestamp, level, message, scope
		FROM run_logs WHERE run_id = ? ORDER BY timestamp, id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.RunLog
	for rows.Next() {
		var l models.RunLog
		if err := rows.Scan(&l.ID, &l.RunID, &l.Timestamp, &l.Level, &l.Message, &l.Scope); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// =============================================================================
// Site Stats
// =============================================================================

func (s *SQLiteStore) UpdateSiteStats(siteID string) error {
	_, err := s.db.Exec(`
		INSERT INTO site_stats (site_id, last_run_at, last_run_status, total_listings,
			success_rate, avg_run_duration_sec)
		SELECT
			?,
			COALESCE(
				(SELECT started_at FROM scrape_runs WHERE site_id = ? AND status = 'completed' ORDER BY started_at DESC LIMIT 1),
				(SELECT started_at FROM scrape_runs WHERE site_id = ? ORDER BY started_at DESC LIMIT 1)
			),
			(SELECT status FROM scrape_runs WHERE site_id = ? ORDER BY started_at DESC LIMIT 1),
			(SELECT COALESCE(SUM(listings_new), 0) FROM scrape_runs WHERE site_id = ?),
			(SELECT CAST(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END) AS REAL) /
				NULLIF(COUNT(*), 0) FROM scrape_runs WHERE site_id = ?),
			(SELECT CAST(AVG((julianday(finished_at) - julianday(started_at)) * 86400) AS INTEGER)
				FROM scrape_runs WHERE site_id = ? AND finished_at IS NOT NULL)
		ON CONFLICT(site_id) DO UPDATE SET
			last_run_at = excluded.last_run_at,
			last_run_status = excluded.last_run_status,
			total_listings = excluded.total_listings,
			success_rate = excluded.success_rate,
			avg_run_duration_sec = excluded.avg_run_duration_sec`,
		siteID, siteID, siteID, siteID, siteID, siteID, siteID)
	return err
}

func (s *SQLiteStore) GetSiteStats(siteID string) (*models.SiteStats, error) {
	var st models.SiteStats
	var status sql.NullString
	var total, avg sql.NullInt64
	var rate sql.NullFloat64
	err := s.db.QueryRow(`
		SELECT site_id, last_run_at, last_run_status, total_listings, success_rate, avg_run_duration_sec
		FROM site_stats WHERE site_id = ?`, siteID).Scan(
		&st.SiteID, &st.LastRunAt, &status, &total, &rate, &avg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st.LastRunStatus = status.String
	st.TotalListings = int(total.Int64)
	st.SuccessRate = rate.Float64
	st.AvgRunDurationSec = int(avg.Int64)
	return &st, nil
}

func (s *SQLiteStore) GetResumePage(siteID string) (int, error) {
	var page int
	err := s.db.QueryRow(`
		SELECT COALESCE(scrape_resume_page, 0) FROM site_stats WHERE site_id = ?`, siteID).Scan(&page)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return page, err
}

func (s *SQLiteStore) SetResumePage(siteID string, page int) error {
	_, err := s.db.Exec(`
		INSERT INTO site_stats (site_id, scrape_resume_page)
		VALUES (?, ?)
		ON CONFLICT(site_id) DO UPDATE SET scrape_resume_page = ?`, siteID, page, page)
	return err
}

func (s *SQLiteStore) ClearResumePage(siteID string) error {
	_, err := s.db.Exec(`
		UPDATE site_stats SET scrape_resume_page = 0 WHERE site_id = ?`, siteID)
	return err
}

// =============================================================================
// Commands
// =============================================================================

func (s *SQLiteStore) InsertCommand(cmd models.CommandType, params *models.CommandParams) (int64, error) {
	var raw []byte
	if params != nil {
		var err error
		if raw, err = json.Marshal(params); err != nil {
			return 0, err
		}
	}
	result, err := s.db.Exec(`
		INSERT INTO commands (command, params, created_at) VALUES (?, ?, ?)`,
		cmd, string(raw), time.Now())
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) GetPendingCommands() ([]models.Command, error) {
	rows, err := s.db.Query(`
		SELECT id, command, params, created_at, processed_at
		FROM commands WHERE processed_at IS NULL ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		var cmd models.Command
		var params sql.NullString
		if err := rows.Scan(&cmd.ID, &cmd.Command, &params, &cmd.CreatedAt, &cmd.ProcessedAt); err != nil {
			return nil, err
		}
		if params.Valid && params.String != "" {
			cmd.Params = json.RawMessage(params.String)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, rows.Err()
}

func (s *SQLiteStore) MarkCommandProcessed(id int64) error {
	_, err := s.db.Exec(`UPDATE commands SET processed_at = ? WHERE id = ?`, time.Now(), id)
	return err
}

func ParseCommandParams(cmd *models.Command) (*models.CommandParams, error) {
	if cmd.Params == nil || string(cmd.Params) == "null" {
		return &models.CommandParams{}, nil
	}
	var params models.CommandParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return nil, err
	}
	return &params, nil
}
