package metrics

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	URLsDiscovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kw_crawler_urls_discovered_total",
		Help: "Listing URLs discovered across all discovery runs.",
	})

	JobsScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kw_crawler_jobs_scheduled_total",
		Help: "Scrape jobs enqueued by the scheduler.",
	})

	ListingsScraped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kw_crawler_listings_scraped_total",
		Help: "Listing pages scraped and persisted.",
	})

	ListingsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kw_crawler_listings_deleted_total",
		Help: "Listings soft-deleted after the source marked them unavailable.",
	})

	ScrapeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kw_crawler_scrape_failures_total",
		Help: "Scrape jobs that failed and were handed back to the queue.",
	})

	PendingJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kw_crawler_pending_jobs",
		Help: "Scrape jobs currently waiting in the queue.",
	})

	PhotosMirrored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kw_crawler_photos_mirrored_total",
		Help: "Photos downloaded and uploaded to object storage.",
	})

	PhotoFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kw_crawler_photo_failures_total",
		Help: "Photo mirror attempts that failed.",
	})

	DiscoveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kw_crawler_discovery_duration_seconds",
		Help:    "Wall-clock duration of discovery runs.",
		Buckets: prometheus.ExponentialBuckets(10, 2, 9),
	})
)

// Expose serves /metrics on addr in a background goroutine.
func Expose(addr string) {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		log.Printf("Metrics listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("Metrics server error: %v", err)
		}
	}()
}
