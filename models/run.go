package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

type ScrapeRun struct {
	ID            int64      `json:"id" db:"id"`
	SiteID        string     `json:"site_id" db:"site_id"`
	StartedAt     time.Time  `json:"started_at" db:"started_at"`
	FinishedAt    *time.Time `json:"finished_at" db:"finished_at"`
	Status        RunStatus  `json:"status" db:"status"`
	ListingsFound int        `json:"listings_found" db:"listings_found"`
	ListingsNew   int        `json:"listings_new" db:"listings_new"`
	ErrorsCount   int        `json:"errors_count" db:"errors_count"`
}

// DedupRun records one batch deduplication pass
type DedupRun struct {
	ID                string     `json:"id" db:"id"`
	StartedAt         time.Time  `json:"started_at" db:"started_at"`
	FinishedAt        *time.Time `json:"finished_at" db:"finished_at"`
	Status            RunStatus  `json:"status" db:"status"`
	ListingsIn        int        `json:"listings_in" db:"listings_in"`
	ListingsInvalid   int        `json:"listings_invalid" db:"listings_invalid"`
	ListingsOut       int        `json:"listings_out" db:"listings_out"`
	DuplicatesRemoved int        `json:"duplicates_removed" db:"duplicates_removed"`
	DeduplicationRate string     `json:"deduplication_rate" db:"deduplication_rate"`
	Buckets           int        `json:"buckets" db:"buckets"`
	LargestBucket     int        `json:"largest_bucket" db:"largest_bucket"`
	MergedClusters    int        `json:"merged_clusters" db:"merged_clusters"`
	ErrorMessage      string     `json:"error_message" db:"error_message"`
}

type SiteStats struct {
	SiteID            string     `json:"site_id" db:"site_id"`
	LastRunAt         *time.Time `json:"last_run_at" db:"last_run_at"`
	LastRunStatus     string     `json:"last_run_status" db:"last_run_status"`
	TotalListings     int        `json:"total_listings" db:"total_listings"`
	SuccessRate       float64    `json:"success_rate" db:"success_rate"`
	AvgRunDurationSec int        `json:"avg_run_duration_sec" db:"avg_run_duration_sec"`
}
