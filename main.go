package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kw_crawler/config"
	"kw_crawler/httputil"
	"kw_crawler/logging"
	"kw_crawler/metrics"
	"kw_crawler/pagereader"
	"kw_crawler/scheduler"
	"kw_crawler/scraper"
	"kw_crawler/services"
	"kw_crawler/storage"
	"kw_crawler/workers"
)

var (
	discoverNow = flag.Bool("discover", false, "Run discovery once and exit")
	scrapeURL   = flag.String("scrape-url", "", "Scrape a single listing URL and exit (requires -site)")
	siteID      = flag.String("site", "", "Site ID for one-shot commands")
	force       = flag.Bool("force", false, "Force re-extraction of already stored fields")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	logFile, err := logging.Setup("crawler.log")
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting kw_crawler...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Loaded %d site configs", len(cfg.Sites))
	for id, site := range cfg.Sites {
		log.Printf("  - %s (%s)", site.Name, id)
	}

	ctx := context.Background()

	pgStore, err := storage.NewPostgresStore(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer pgStore.Close()
	log.Printf("Connected to Postgres: %s", maskConnectionString(cfg.PostgresURL))

	sqliteStore, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open SQLite: %v", err)
	}
	defer sqliteStore.Close()
	log.Printf("SQLite database: %s", cfg.DBPath)

	metrics.Expose(cfg.MetricsAddr)
	log.Printf("Metrics on %s", cfg.MetricsAddr)

	listingService := services.NewListingService(pgStore)

	clock := pagereader.SystemClock{}
	reporter := &storage.LogReporter{Store: sqliteStore}

	sources := make(map[string]scraper.ListingSource)
	for id, site := range cfg.Sites {
		src, err := scraper.NewSource(site, cfg.Crawler, reporter, clock)
		if err != nil {
			log.Fatalf("Failed to build source for %s: %v", id, err)
		}
		sources[id] = src
	}

	newReader := func(ctx context.Context) (pagereader.Reader, error) {
		return pagereader.NewSession(cfg.Crawler.Headless)
	}

	orchestrator := scraper.NewOrchestrator(
		sources, cfg.Sites, listingService, newReader, cfg.Crawler, clock, reporter)

	sched := scheduler.New(cfg, orchestrator, sqliteStore)

	// One-shot modes
	if *discoverNow {
		site := *siteID
		if site == "" {
			sched.DiscoverAll(ctx)
		} else if err := sched.RunDiscovery(ctx, site); err != nil {
			log.Fatalf("Discovery failed: %v", err)
		}
		log.Println("Discovery complete!")
		return
	}
	if *scrapeURL != "" {
		if *siteID == "" {
			log.Fatal("-scrape-url requires -site")
		}
		if err := orchestrator.ScrapeOne(ctx, *siteID, *scrapeURL, *force); err != nil {
			log.Fatalf("Scrape failed: %v", err)
		}
		log.Println("Scrape complete!")
		return
	}

	// Daemon mode
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	scrapeWorker := workers.NewScrapeWorker(sqliteStore, orchestrator, cfg.Crawler.Concurrency)
	go scrapeWorker.Run(ctx, 10, 30*time.Second)
	log.Println("Scrape worker started")

	var uploader workers.Uploader
	if cfg.S3.Bucket != "" {
		s3Uploader, err := storage.NewS3Uploader(ctx, storage.S3Config(cfg.S3))
		if err != nil {
			log.Fatalf("Failed to build S3 uploader: %v", err)
		}
		uploader = s3Uploader
	} else {
		log.Println("No S3 bucket configured, photos are tracked but not mirrored")
	}
	photoWorker := workers.NewPhotoWorker(pgStore, uploader, httputil.NewMediaClient(""))
	go photoWorker.Run(ctx, 20, 2*time.Minute)
	log.Println("Photo worker started")

	refreshWorker := workers.NewRefreshWorker(pgStore, sqliteStore, cfg.Crawler.StaleAfter, cfg.Scheduler.JobInterval)
	go refreshWorker.Run(ctx, 50, 1*time.Hour)
	log.Println("Refresh worker started")

	sched.SetWorkers(scrapeWorker, photoWorker)

	log.Println("Daemon running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	sched.Stop()
	cancel()
	log.Println("Goodbye!")
}

// maskConnectionString masks password in connection string for logging
func maskConnectionString(connStr string) string {
	start := 0
	for i := 0; i < len(connStr)-3; i++ {
		if connStr[i:i+3] == "://" {
			start = i + 3
			break
		}
	}
	if start == 0 {
		return connStr
	}

	colonIdx := -1
	atIdx := -1
	for i := start; i < len(connStr); i++ {
		if connStr[i] == ':' && colonIdx == -1 {
			colonIdx = i
		}
		if connStr[i] == '@' {
			atIdx = i
			break
		}
	}

	if colonIdx > 0 && atIdx > colonIdx {
		return connStr[:colonIdx+1] + "****" + connStr[atIdx:]
	}
	return connStr
}
