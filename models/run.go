package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// ScrapeRun records one discovery pass over a site.
type ScrapeRun struct {
	ID             int64      `json:"id" db:"id"`
	SiteID         string     `json:"site_id" db:"site_id"`
	StartedAt      time.Time  `json:"started_at" db:"started_at"`
	FinishedAt     *time.Time `json:"finished_at" db:"finished_at"`
	Status         RunStatus  `json:"status" db:"status"`
	URLsDiscovered int        `json:"urls_discovered" db:"urls_discovered"`
	JobsScheduled  int        `json:"jobs_scheduled" db:"jobs_scheduled"`
	ErrorsCount    int        `json:"errors_count" db:"errors_count"`
}
