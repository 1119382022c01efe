package workers

import (
	"context"
	"log"
	"time"

	"kw_crawler/models"
)

// staleSource finds listings whose last sighting is too old.
type staleSource interface {
	GetStaleListings(ctx context.Context, staleDuration time.Duration, limit int) ([]models.Listing, error)
}

type refreshQueue interface {
	EnqueueScrape(siteID, url string, force bool, delay time.Duration) error
}

// RefreshWorker re-enqueues listings that discovery has not surfaced
// recently, so status changes and removals are noticed even when a
// listing drops off the search pages.
type RefreshWorker struct {
	source     staleSource
	queue      refreshQueue
	staleAfter time.Duration
	step       time.Duration
}

func NewRefreshWorker(source staleSource, queue refreshQueue, staleAfter, step time.Duration) *RefreshWorker {
	return &RefreshWorker{source: source, queue: queue, staleAfter: staleAfter, step: step}
}

func (w *RefreshWorker) Run(ctx context.Context, batchSize int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Refresh worker stopping")
			return
		case <-ticker.C:
			w.processBatch(ctx, batchSize)
		}
	}
}

func (w *RefreshWorker) processBatch(ctx context.Context, batchSize int) {
	listings, err := w.source.GetStaleListings(ctx, w.staleAfter, batchSize)
	if err != nil {
		log.Printf("Refresh worker: query error: %v", err)
		return
	}
	if len(listings) == 0 {
		return
	}

	scheduled := 0
	for i, l := range listings {
		delay := time.Duration(i) * w.step
		if err := w.queue.EnqueueScrape(l.SiteID, l.URL, false, delay); err != nil {
			log.Printf("Refresh worker: could not enqueue %s: %v", l.URL, err)
			continue
		}
		scheduled++
	}
	log.Printf("Refresh worker: re-enqueued %d stale listings", scheduled)
}
