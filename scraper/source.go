package scraper

import (
	"context"
	"fmt"

	"kw_crawler/config"
	"kw_crawler/models"
	"kw_crawler/pagereader"
	"kw_crawler/retry"
)

// PageMarkers identifies the availability marker on a detail page. The
// marker cycles through a loading placeholder before settling on either a
// real status label or the site's unavailable message.
type PageMarkers struct {
	StatusSelector  string
	AwaitingText    string
	UnavailableText string
}

// ListingSource is one site adapter. All methods operate on a Reader the
// caller navigated; adapters never own the browser session.
type ListingSource interface {
	ID() string
	SearchURL() string
	Markers() PageMarkers

	// TargetCount reads the expected result total from the search page.
	// Zero means the page exposes no usable count.
	TargetCount(pr pagereader.Reader) (int, error)
	CollectListingURLs(pr pagereader.Reader) ([]string, error)
	// RequestMore asks the page for the next batch of results. Adapters
	// swallow missing-button errors; only hard failures propagate.
	RequestMore(pr pagereader.Reader) error

	SwitchLocale(ctx context.Context, pr pagereader.Reader, locale string) error
	ScrapeDetails(ctx context.Context, pr pagereader.Reader, url string, existing *models.Listing, force bool, locale string) (*models.ScrapedListing, error)
	// ScrapeLocalized re-extracts only the translatable fields after a
	// locale switch.
	ScrapeLocalized(ctx context.Context, pr pagereader.Reader, url, locale string) (*models.ScrapedListing, error)
	ScrapeComplex(ctx context.Context, pr pagereader.Reader, url string) (*models.ScrapedComplex, error)
}

// NewSource builds the adapter named by the site config.
func NewSource(site *config.SiteConfig, crawler config.CrawlerConfig, reporter retry.Reporter, clock pagereader.Clock) (ListingSource, error) {
	switch site.Adapter {
	case "kw":
		return newKWSource(site, crawler, reporter, clock), nil
	default:
		return nil, fmt.Errorf("unknown site adapter %q", site.Adapter)
	}
}
