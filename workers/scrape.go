package workers

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"
	"kw_crawler/metrics"
	"kw_crawler/models"
)

const (
	maxJobAttempts = 3
	jobRetryDelay  = 5 * time.Minute
	stuckJobAge    = 30 * time.Minute
)

// scrapeQueue is the slice of the SQLite store the worker needs.
type scrapeQueue interface {
	ClaimDueJobs(limit int) ([]models.ScrapeJob, error)
	MarkJobDone(id int64) error
	MarkJobFailed(id int64, errMsg string, maxAttempts int, retryDelay time.Duration) error
	ReleaseStuckJobs(olderThan time.Duration) (int64, error)
	PendingJobCount() (int, error)
}

// scrapeRunner is the orchestrator surface the worker drives.
type scrapeRunner interface {
	ScrapeOne(ctx context.Context, siteID, url string, force bool) error
	Paused() bool
}

// ScrapeWorker drains the job queue, running a bounded number of scrapes
// in parallel. Failed jobs requeue with a delay until their attempts run
// out.
type ScrapeWorker struct {
	queue       scrapeQueue
	runner      scrapeRunner
	concurrency int
	trigger     chan struct{}
}

func NewScrapeWorker(queue scrapeQueue, runner scrapeRunner, concurrency int) *ScrapeWorker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &ScrapeWorker{
		queue:       queue,
		runner:      runner,
		concurrency: concurrency,
		trigger:     make(chan struct{}, 1),
	}
}

// Trigger requests an immediate batch outside the ticker cadence.
func (w *ScrapeWorker) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

func (w *ScrapeWorker) Run(ctx context.Context, batchSize int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Scrape worker stopping")
			return
		case <-ticker.C:
			w.processBatch(ctx, batchSize)
		case <-w.trigger:
			w.processBatch(ctx, batchSize)
		}
	}
}

func (w *ScrapeWorker) processBatch(ctx context.Context, batchSize int) {
	if w.runner.Paused() {
		return
	}

	if released, err := w.queue.ReleaseStuckJobs(stuckJobAge); err != nil {
		log.Printf("Scrape worker: release stuck jobs: %v", err)
	} else if released > 0 {
		log.Printf("Scrape worker: released %d stuck jobs", released)
	}

	jobs, err := w.queue.ClaimDueJobs(batchSize)
	if err != nil {
		log.Printf("Scrape worker: claim error: %v", err)
		return
	}
	if len(jobs) == 0 {
		return
	}

	log.Printf("Scrape worker: processing %d jobs", len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for i := range jobs {
		job := jobs[i]
		g.Go(func() error {
			if err := w.runner.ScrapeOne(gctx, job.SiteID, job.URL, job.Force); err != nil {
				log.Printf("Scrape worker: job %d failed: %v", job.ID, err)
				if ferr := w.queue.MarkJobFailed(job.ID, err.Error(), maxJobAttempts, jobRetryDelay); ferr != nil {
					log.Printf("Scrape worker: could not record failure for job %d: %v", job.ID, ferr)
				}
				return nil
			}
			if derr := w.queue.MarkJobDone(job.ID); derr != nil {
				log.Printf("Scrape worker: could not mark job %d done: %v", job.ID, derr)
			}
			return nil
		})
	}
	g.Wait()

	if count, err := w.queue.PendingJobCount(); err == nil {
		metrics.PendingJobs.Set(float64(count))
	}
}
