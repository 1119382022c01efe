package models

import (
	"encoding/json"
	"time"
)

type CommandType string

const (
	CmdDiscoverNow CommandType = "discover_now"
	CmdScrapeURL   CommandType = "scrape_url"
	CmdRunPhotos   CommandType = "run_photos"
	CmdPause       CommandType = "pause"
	CmdResume      CommandType = "resume"
)

type Command struct {
	ID          int64           `json:"id" db:"id"`
	Command     CommandType     `json:"command" db:"command"`
	Params      json.RawMessage `json:"params" db:"params"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at" db:"processed_at"`
}

type CommandParams struct {
	Site  string `json:"site,omitempty"`
	URL   string `json:"url,omitempty"`
	Force bool   `json:"force,omitempty"`
}
