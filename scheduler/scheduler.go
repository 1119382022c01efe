package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"kw_crawler/config"
	"kw_crawler/metrics"
	"kw_crawler/models"
)

// Triggerable allows workers to be triggered manually
type Triggerable interface {
	Trigger()
}

// jobQueue is the slice of the SQLite store the scheduler writes to.
type jobQueue interface {
	EnqueueScrape(siteID, url string, force bool, delay time.Duration) error
	PendingJobCount() (int, error)
	CreateRun(run *models.ScrapeRun) (int64, error)
	UpdateRun(run *models.ScrapeRun) error
	Log(runID *int64, level models.LogLevel, message, siteID string) error
	GetPendingCommands() ([]models.Command, error)
	MarkCommandProcessed(id int64) error
	ParseCommandParams(cmd *models.Command) (*models.CommandParams, error)
}

// crawlControl is what the scheduler needs from the orchestrator.
type crawlControl interface {
	DiscoverSite(ctx context.Context, siteID string) ([]string, error)
	Pause()
	Resume()
}

// Scheduler runs discovery on a cron, staggers the resulting scrape jobs,
// and services the operator command channel.
type Scheduler struct {
	cfg    *config.Config
	orch   crawlControl
	queue  jobQueue
	cron   *cron.Cron
	stopCh chan struct{}

	scrapeWorker Triggerable
	photoWorker  Triggerable
}

func New(cfg *config.Config, orch crawlControl, queue jobQueue) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		orch:   orch,
		queue:  queue,
		cron:   cron.New(),
		stopCh: make(chan struct{}),
	}
}

// SetWorkers registers background workers for manual triggering
func (s *Scheduler) SetWorkers(scrape, photos Triggerable) {
	s.scrapeWorker = scrape
	s.photoWorker = photos
}

func (s *Scheduler) Start(ctx context.Context) error {
	go s.pollCommands(ctx)

	if s.cfg.Scheduler.Cron != "" {
		log.Printf("Starting scheduler with cron: %s", s.cfg.Scheduler.Cron)
		_, err := s.cron.AddFunc(s.cfg.Scheduler.Cron, func() {
			s.DiscoverAll(ctx)
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
	} else {
		log.Println("No discovery cron configured, daemon will only respond to commands")
	}

	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	close(s.stopCh)
}

// DiscoverAll runs discovery for every configured site in sequence.
func (s *Scheduler) DiscoverAll(ctx context.Context) {
	for siteID := range s.cfg.Sites {
		if err := s.RunDiscovery(ctx, siteID); err != nil {
			log.Printf("Discovery error for %s: %v", siteID, err)
		}
	}
}

// RunDiscovery walks one site's search page and schedules a staggered
// scrape job for every URL that surfaced.
func (s *Scheduler) RunDiscovery(ctx context.Context, siteID string) error {
	run := &models.ScrapeRun{
		SiteID:    siteID,
		StartedAt: time.Now(),
		Status:    models.RunStatusRunning,
	}
	runID, err := s.queue.CreateRun(run)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	run.ID = runID

	urls, err := s.orch.DiscoverSite(ctx, siteID)
	finished := time.Now()
	run.FinishedAt = &finished
	if err != nil {
		run.Status = models.RunStatusFailed
		run.ErrorsCount = 1
		if uerr := s.queue.UpdateRun(run); uerr != nil {
			log.Printf("Warning: could not update run %d: %v", runID, uerr)
		}
		s.queue.Log(&runID, models.LogLevelError, fmt.Sprintf("discovery failed: %v", err), siteID)
		return fmt.Errorf("discover %s: %w", siteID, err)
	}

	scheduled := s.ScheduleBatch(siteID, urls, false)

	run.Status = models.RunStatusCompleted
	run.URLsDiscovered = len(urls)
	run.JobsScheduled = scheduled
	if err := s.queue.UpdateRun(run); err != nil {
		log.Printf("Warning: could not update run %d: %v", runID, err)
	}
	s.queue.Log(&runID, models.LogLevelInfo,
		fmt.Sprintf("discovered %d urls, scheduled %d jobs", len(urls), scheduled), siteID)

	if count, err := s.queue.PendingJobCount(); err == nil {
		metrics.PendingJobs.Set(float64(count))
	}
	return nil
}

// ScheduleBatch enqueues one scrape job per URL. The i-th job becomes due
// i*JobInterval from now, spreading the load across the whole batch
// window instead of hammering the site.
func (s *Scheduler) ScheduleBatch(siteID string, urls []string, force bool) int {
	scheduled := 0
	for i, url := range urls {
		delay := time.Duration(i) * s.cfg.Scheduler.JobInterval
		if err := s.queue.EnqueueScrape(siteID, url, force, delay); err != nil {
			log.Printf("Warning: could not enqueue %s: %v", url, err)
			continue
		}
		metrics.JobsScheduled.Inc()
		scheduled++
	}
	log.Printf("[%s] Scheduled %d/%d scrape jobs at %s intervals", siteID, scheduled, len(urls), s.cfg.Scheduler.JobInterval)
	return scheduled
}

func (s *Scheduler) pollCommands(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cmds, err := s.queue.GetPendingCommands()
			if err != nil {
				log.Printf("Error getting commands: %v", err)
				continue
			}

			for _, cmd := range cmds {
				log.Printf("Processing command: %s", cmd.Command)
				if err := s.handleCommand(ctx, &cmd); err != nil {
					log.Printf("Command error: %v", err)
				}
				if err := s.queue.MarkCommandProcessed(cmd.ID); err != nil {
					log.Printf("Error marking command processed: %v", err)
				}
			}
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) handleCommand(ctx context.Context, cmd *models.Command) error {
	params, err := s.queue.ParseCommandParams(cmd)
	if err != nil {
		return fmt.Errorf("parse params: %w", err)
	}

	switch cmd.Command {
	case models.CmdDiscoverNow:
		if params.Site != "" {
			go s.RunDiscovery(ctx, params.Site)
		} else {
			go s.DiscoverAll(ctx)
		}
		return nil
	case models.CmdScrapeURL:
		if params.Site == "" || params.URL == "" {
			return fmt.Errorf("scrape_url requires site and url")
		}
		if err := s.queue.EnqueueScrape(params.Site, params.URL, params.Force, 0); err != nil {
			return fmt.Errorf("enqueue: %w", err)
		}
		if s.scrapeWorker != nil {
			s.scrapeWorker.Trigger()
		}
		return nil
	case models.CmdRunPhotos:
		if s.photoWorker != nil {
			s.photoWorker.Trigger()
			log.Println("Photo worker triggered via command")
		}
		return nil
	case models.CmdPause:
		s.orch.Pause()
		return nil
	case models.CmdResume:
		s.orch.Resume()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", cmd.Command)
	}
}
