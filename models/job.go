package models

import "time"

type JobType string

const (
	JobTypeScrape JobType = "scrape_listing"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusFailed     JobStatus = "failed"
)

// ScrapeJob is one deferred unit of work in the SQLite-backed queue.
// Delivery is at-least-once; the upsert-by-URL design makes redelivery
// of the same URL safe.
type ScrapeJob struct {
	ID          int64      `json:"id" db:"id"`
	Type        JobType    `json:"job_type" db:"job_type"`
	SiteID      string     `json:"site_id" db:"site_id"`
	URL         string     `json:"url" db:"url"`
	Force       bool       `json:"force" db:"force_rescrape"`
	Status      JobStatus  `json:"status" db:"status"`
	Attempts    int        `json:"attempts" db:"attempts"`
	LastError   *string    `json:"last_error" db:"last_error"`
	ScheduledAt time.Time  `json:"scheduled_at" db:"scheduled_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	FinishedAt  *time.Time `json:"finished_at" db:"finished_at"`
}
