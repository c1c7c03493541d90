package models

import (
	"encoding/json"
	"time"
)

// CommandType names an operator request queued in the commands table. The
// console writes them and the daemon's scheduler polls and acts on them.
type CommandType string

const (
	CmdScrapeNow  CommandType = "scrape_now"
	CmdScrapeSite CommandType = "scrape_site"
	// CmdDedupNow asks the dedup worker for an immediate pass.
	CmdDedupNow   CommandType = "dedup_now"
	CmdPause      CommandType = "pause"
	CmdResume     CommandType = "resume"
)

type Command struct {
	ID          int64           `json:"id" db:"id"`
	Command     CommandType     `json:"command" db:"command"`
	Params      json.RawMessage `json:"params" db:"params"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at" db:"processed_at"`
}

// CommandParams narrows scrape_site to one site, optionally one region.
type CommandParams struct {
	Site   string `json:"site,omitempty"`
	Region string `json:"region,omitempty"`
}
