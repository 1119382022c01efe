package scraper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"kw_crawler/config"
	"kw_crawler/metrics"
	"kw_crawler/models"
	"kw_crawler/pagereader"
	"kw_crawler/retry"
	"kw_crawler/services"
)

const (
	stabilizePoll    = 500 * time.Millisecond
	stabilizeTimeout = 20 * time.Second
)

// Sink is where scrape results land. *services.ListingService implements
// it; tests substitute a recorder.
type Sink interface {
	FindByURL(ctx context.Context, url string) (*models.Listing, error)
	ApplyScrape(ctx context.Context, scraped *models.ScrapedListing) (*services.ApplyResult, error)
	MarkUnavailable(ctx context.Context, siteID, url string) error
	FindComplexByURL(ctx context.Context, url string) (*models.ListingComplex, error)
	ApplyComplex(ctx context.Context, scraped *models.ScrapedComplex) (*models.ListingComplex, error)
	LinkComplex(ctx context.Context, listingURL string, complexID uuid.UUID) error
}

// ReaderFactory opens a fresh browser session per operation so a crashed
// page never poisons the next job.
type ReaderFactory func(ctx context.Context) (pagereader.Reader, error)

// Orchestrator drives detail scrapes and discovery runs over the
// configured sites.
type Orchestrator struct {
	sources   map[string]ListingSource
	sites     map[string]*config.SiteConfig
	sink      Sink
	newReader ReaderFactory
	crawler   config.CrawlerConfig
	clock     pagereader.Clock
	reporter  retry.Reporter

	mu     sync.Mutex
	paused bool
}

func NewOrchestrator(
	sources map[string]ListingSource,
	sites map[string]*config.SiteConfig,
	sink Sink,
	newReader ReaderFactory,
	crawler config.CrawlerConfig,
	clock pagereader.Clock,
	reporter retry.Reporter,
) *Orchestrator {
	return &Orchestrator{
		sources:   sources,
		sites:     sites,
		sink:      sink,
		newReader: newReader,
		crawler:   crawler,
		clock:     clock,
		reporter:  reporter,
	}
}

func (o *Orchestrator) Pause() {
	o.mu.Lock()
	o.paused = true
	o.mu.Unlock()
	log.Println("Orchestrator paused")
}

func (o *Orchestrator) Resume() {
	o.mu.Lock()
	o.paused = false
	o.mu.Unlock()
	log.Println("Orchestrator resumed")
}

func (o *Orchestrator) Paused() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.paused
}

// DiscoverSite walks the site's search page and returns every listing URL
// it could surface.
func (o *Orchestrator) DiscoverSite(ctx context.Context, siteID string) ([]string, error) {
	src, ok := o.sources[siteID]
	if !ok {
		return nil, fmt.Errorf("no source for site %s", siteID)
	}

	pr, err := o.newReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open reader: %w", err)
	}
	defer pr.Close()

	disc := &Discovery{
		MaxTotalTime: o.crawler.MaxTotalTime,
		MaxNoChange:  o.crawler.MaxNoChangeAttempts,
		PollInterval: o.crawler.PollInterval,
		Clock:        o.clock,
	}
	result, err := disc.Run(ctx, src, pr)
	if err != nil {
		return nil, err
	}

	metrics.URLsDiscovered.Add(float64(len(result.URLs)))
	metrics.DiscoveryDuration.Observe(result.Elapsed.Seconds())
	log.Printf("[%s] Discovered %d urls (target %d) in %s over %d attempts",
		siteID, len(result.URLs), result.Target, result.Elapsed.Round(time.Second), result.Attempts)
	return result.URLs, nil
}

// ScrapeOne processes a single listing URL: classify availability first,
// then extract, then run the extra locale passes.
func (o *Orchestrator) ScrapeOne(ctx context.Context, siteID, url string, force bool) error {
	src, ok := o.sources[siteID]
	if !ok {
		return fmt.Errorf("no source for site %s", siteID)
	}
	site := o.sites[siteID]

	pr, err := o.newReader(ctx)
	if err != nil {
		return fmt.Errorf("open reader: %w", err)
	}
	defer pr.Close()

	if err := o.navigate(ctx, pr, url); err != nil {
		metrics.ScrapeFailures.Inc()
		return fmt.Errorf("navigate %s: %w", url, err)
	}

	available, err := awaitStable(ctx, pr, src.Markers(), o.clock)
	if err != nil {
		metrics.ScrapeFailures.Inc()
		return fmt.Errorf("classify %s: %w", url, err)
	}
	if !available {
		if err := o.sink.MarkUnavailable(ctx, siteID, url); err != nil {
			return fmt.Errorf("mark unavailable %s: %w", url, err)
		}
		metrics.ListingsDeleted.Inc()
		log.Printf("[%s] Listing gone, soft-deleted: %s", siteID, url)
		return nil
	}

	existing, err := o.sink.FindByURL(ctx, url)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", url, err)
	}

	locale := site.DefaultLocale
	scraped, err := src.ScrapeDetails(ctx, pr, url, existing, force, locale)
	if err != nil {
		metrics.ScrapeFailures.Inc()
		return fmt.Errorf("scrape %s: %w", url, err)
	}

	if _, err := o.sink.ApplyScrape(ctx, scraped); err != nil {
		if errors.Is(err, models.ErrInvalid) {
			log.Printf("[%s] Warning: dropping invalid scrape of %s: %v", siteID, url, err)
			return nil
		}
		return fmt.Errorf("apply %s: %w", url, err)
	}
	metrics.ListingsScraped.Inc()

	if gone := o.scrapeAllLocales(ctx, src, pr, site, siteID, url, locale); gone {
		return nil
	}

	if scraped.ComplexURL != nil {
		if err := o.attachComplex(ctx, src, siteID, url, *scraped.ComplexURL); err != nil {
			log.Printf("[%s] Warning: could not attach complex for %s: %v", siteID, url, err)
		}
	}

	return nil
}

// scrapeAllLocales runs the extra locale passes over an already-open
// listing page. Per-locale failures are logged and skipped; gone reports
// that the listing disappeared and the caller should stop.
func (o *Orchestrator) scrapeAllLocales(ctx context.Context, src ListingSource, pr pagereader.Reader, site *config.SiteConfig, siteID, url, defaultLocale string) bool {
	for _, extra := range site.Locales {
		if extra == defaultLocale {
			continue
		}
		gone, err := o.scrapeLocale(ctx, src, pr, siteID, url, extra)
		if err != nil {
			log.Printf("[%s] Warning: locale %s pass failed for %s: %v", siteID, extra, url, err)
		}
		if gone {
			return true
		}
	}
	return false
}

// scrapeLocale switches the page language and re-extracts the
// translatable fields. The page can disappear between passes, so the
// availability marker is checked again; gone reports a mid-pass deletion.
func (o *Orchestrator) scrapeLocale(ctx context.Context, src ListingSource, pr pagereader.Reader, siteID, url, locale string) (gone bool, err error) {
	if err := src.SwitchLocale(ctx, pr, locale); err != nil {
		return false, err
	}

	available, err := awaitStable(ctx, pr, src.Markers(), o.clock)
	if err != nil {
		return false, err
	}
	if !available {
		if err := o.sink.MarkUnavailable(ctx, siteID, url); err != nil {
			return false, err
		}
		metrics.ListingsDeleted.Inc()
		log.Printf("[%s] Listing vanished during locale %s pass, soft-deleted: %s", siteID, locale, url)
		return true, nil
	}

	localized, err := src.ScrapeLocalized(ctx, pr, url, locale)
	if err != nil {
		return false, err
	}
	if _, err := o.sink.ApplyScrape(ctx, localized); err != nil {
		return false, err
	}
	return false, nil
}

// attachComplex scrapes the development page once; later listings that
// reference it only get linked.
func (o *Orchestrator) attachComplex(ctx context.Context, src ListingSource, siteID, listingURL, complexURL string) error {
	known, err := o.sink.FindComplexByURL(ctx, complexURL)
	if err != nil {
		return fmt.Errorf("lookup complex: %w", err)
	}
	if known != nil {
		return o.sink.LinkComplex(ctx, listingURL, known.ID)
	}

	pr, err := o.newReader(ctx)
	if err != nil {
		return fmt.Errorf("open reader: %w", err)
	}
	defer pr.Close()

	if err := o.navigate(ctx, pr, complexURL); err != nil {
		return fmt.Errorf("navigate complex: %w", err)
	}
	scraped, err := src.ScrapeComplex(ctx, pr, complexURL)
	if err != nil {
		return fmt.Errorf("scrape complex: %w", err)
	}
	complex, err := o.sink.ApplyComplex(ctx, scraped)
	if err != nil {
		return fmt.Errorf("apply complex: %w", err)
	}
	log.Printf("[%s] Linked %s to complex %s", siteID, listingURL, complex.Name)
	return o.sink.LinkComplex(ctx, listingURL, complex.ID)
}

func (o *Orchestrator) navigate(ctx context.Context, pr pagereader.Reader, url string) error {
	return retry.Do(ctx, o.reporter, retry.Options{
		Op:       "navigate " + url,
		MaxTries: o.crawler.NavTries,
		Delay:    o.crawler.NavDelay,
		Sleep:    o.clock.Sleep,
	}, func(ctx context.Context) error {
		return pr.Navigate(ctx, url)
	})
}

// awaitStable polls the availability marker until it settles. The marker
// starts as a loading placeholder; it resolves to either the unavailable
// message or a real status label. A marker that never settles is a hard
// failure, not a deletion.
func awaitStable(ctx context.Context, pr pagereader.Reader, m PageMarkers, clock pagereader.Clock) (bool, error) {
	deadline := clock.Now().Add(stabilizeTimeout)
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		text, err := pr.Text(m.StatusSelector)
		if err == nil {
			text = strings.TrimSpace(text)
			switch {
			case text == "" || strings.Contains(text, m.AwaitingText):
				// still settling
			case containsFold(text, m.UnavailableText):
				return false, nil
			default:
				return true, nil
			}
		}

		if clock.Now().After(deadline) {
			return false, fmt.Errorf("availability marker %q did not stabilize within %s", m.StatusSelector, stabilizeTimeout)
		}
		clock.Sleep(stabilizePoll)
	}
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
