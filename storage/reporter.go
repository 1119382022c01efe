package storage

import (
	"context"
	"fmt"
	"log"

	"kw_crawler/models"
)

// LogReporter records retry failures in the scrape_logs table so every
// attempt is visible to operators, not only the final one.
type LogReporter struct {
	Store  *SQLiteStore
	SiteID string
}

func (r *LogReporter) Report(_ context.Context, op string, attempt int, err error) {
	log.Printf("[retry] %s attempt %d: %v", op, attempt, err)
	if r.Store == nil {
		return
	}
	msg := fmt.Sprintf("%s attempt %d: %v", op, attempt, err)
	if logErr := r.Store.Log(nil, models.LogLevelWarn, msg, r.SiteID); logErr != nil {
		log.Printf("Warning: could not record retry failure: %v", logErr)
	}
}
