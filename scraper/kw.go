package scraper

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"kw_crawler/config"
	"kw_crawler/models"
	"kw_crawler/pagereader"
	"kw_crawler/retry"
)

// kwSource scrapes KW Portugal. The site renders everything client-side,
// so individual fields can pop in after the page settles; every field
// read gets its own bounded retry and a failed field is left nil instead
// of failing the whole scrape.
type kwSource struct {
	site     *config.SiteConfig
	crawler  config.CrawlerConfig
	reporter retry.Reporter
	clock    pagereader.Clock
}

func newKWSource(site *config.SiteConfig, crawler config.CrawlerConfig, reporter retry.Reporter, clock pagereader.Clock) *kwSource {
	return &kwSource{site: site, crawler: crawler, reporter: reporter, clock: clock}
}

func (k *kwSource) ID() string { return k.site.ID }

func (k *kwSource) SearchURL() string {
	return strings.TrimRight(k.site.BaseURL, "/") + k.site.SearchPath
}

func (k *kwSource) Markers() PageMarkers {
	return PageMarkers{
		StatusSelector:  ".property-status",
		AwaitingText:    "A carregar",
		UnavailableText: "indisponível",
	}
}

func (k *kwSource) fieldOpts(op string) retry.Options {
	return retry.Options{
		Op:       op,
		MaxTries: k.crawler.FieldTries,
		Delay:    k.crawler.FieldDelay,
		Sleep:    k.clock.Sleep,
	}
}

// =============================================================================
// Discovery
// =============================================================================

func (k *kwSource) TargetCount(pr pagereader.Reader) (int, error) {
	text, err := pr.Text(".results-count")
	if err != nil {
		return 0, fmt.Errorf("read results count: %w", err)
	}
	n, ok := firstInt(text)
	if !ok {
		return 0, fmt.Errorf("no number in results count %q", text)
	}
	return n, nil
}

func (k *kwSource) CollectListingURLs(pr pagereader.Reader) ([]string, error) {
	hrefs, err := pr.AttributeAll("a[href*='"+k.site.ListingPathMarker+"']", "href")
	if err != nil {
		return nil, fmt.Errorf("collect listing links: %w", err)
	}

	var urls []string
	seen := map[string]bool{}
	for _, href := range hrefs {
		url := k.absoluteURL(href)
		if url == "" || seen[url] {
			continue
		}
		seen[url] = true
		urls = append(urls, url)
	}
	return urls, nil
}

// RequestMore clicks the load-more button when present, otherwise scrolls
// the result list to trigger infinite loading.
func (k *kwSource) RequestMore(pr pagereader.Reader) error {
	if err := pr.Click("button.load-more"); err == nil {
		return nil
	}
	if err := pr.ScrollToEnd(".results-list"); err != nil {
		log.Printf("[%s] Warning: could not request more results: %v", k.site.ID, err)
	}
	return nil
}

func (k *kwSource) absoluteURL(href string) string {
	href = strings.TrimSpace(href)
	switch {
	case href == "":
		return ""
	case strings.HasPrefix(href, "http://"), strings.HasPrefix(href, "https://"):
		return href
	case strings.HasPrefix(href, "/"):
		return strings.TrimRight(k.site.BaseURL, "/") + href
	default:
		return ""
	}
}

// =============================================================================
// Detail extraction
// =============================================================================

func (k *kwSource) SwitchLocale(ctx context.Context, pr pagereader.Reader, locale string) error {
	selector := fmt.Sprintf(".locale-switcher a[data-locale='%s']", locale)
	err := retry.Do(ctx, k.reporter, k.fieldOpts("switch locale "+locale), func(context.Context) error {
		if clickErr := pr.Click(selector); clickErr != nil {
			return clickErr
		}
		return pr.WaitFor(".property-title", 5*time.Second)
	})
	if err != nil {
		return fmt.Errorf("switch to locale %s: %w", locale, err)
	}
	return nil
}

func (k *kwSource) ScrapeDetails(ctx context.Context, pr pagereader.Reader, url string, existing *models.Listing, force bool, locale string) (*models.ScrapedListing, error) {
	out := &models.ScrapedListing{SiteID: k.site.ID, URL: url, Locale: locale}

	if title := k.textField(ctx, pr, "h1.property-title", "title"); title != nil {
		clean := cleanUnits(*title)
		out.Title = &clean
		slug := slugify(clean)
		out.Slug = &slug
	}
	if price := k.textField(ctx, pr, ".property-price", "price"); price != nil {
		out.Price = price
	}
	if address := k.textField(ctx, pr, ".property-address", "address"); address != nil {
		out.Address = address
	}
	if desc := k.textField(ctx, pr, ".property-description", "description"); desc != nil {
		clean := cleanUnits(*desc)
		out.Description = &clean
	}
	if label := k.textField(ctx, pr, ".property-status", "status"); label != nil {
		status := mapStatus(*label)
		out.Status = &status
	}

	html, err := retry.DoValue(ctx, k.reporter, k.fieldOpts("page content"), func(context.Context) (string, error) {
		return pr.Content()
	})
	if err != nil {
		log.Printf("[%s] Warning: could not read page content for %s: %v", k.site.ID, url, err)
	} else {
		if attrs, err := parseAttributes(html); err == nil {
			out.Attributes = attrs
		} else {
			log.Printf("[%s] Warning: attribute parse failed for %s: %v", k.site.ID, url, err)
		}
		if features, err := parseFeatures(html); err == nil && len(features) > 0 {
			out.Features = features
		}
		// photo extraction is skipped for known galleries unless forced
		if force || existing == nil || !existing.HasPhotos() {
			if photos, err := parsePhotoURLs(html); err == nil && len(photos) > 0 {
				out.PhotoURLs = photos
			}
		}
	}

	if href, err := pr.Attribute("a[href*='"+k.site.ComplexPathMarker+"']", "href"); err == nil {
		if complexURL := k.absoluteURL(href); complexURL != "" {
			out.ComplexURL = &complexURL
		}
	}

	// Sparse pages never carry an explicit label. A page with no detail
	// rows is a plain listing; one that has rows but no feature list yet
	// is a fresh publication.
	if out.Status == nil {
		status := models.StatusStandard
		if out.Attributes != nil && out.Features == nil {
			status = models.StatusRecent
		}
		out.Status = &status
	}

	return out, nil
}

func (k *kwSource) ScrapeLocalized(ctx context.Context, pr pagereader.Reader, url, locale string) (*models.ScrapedListing, error) {
	out := &models.ScrapedListing{SiteID: k.site.ID, URL: url, Locale: locale}

	if title := k.textField(ctx, pr, "h1.property-title", "title "+locale); title != nil {
		clean := cleanUnits(*title)
		out.Title = &clean
		slug := slugify(clean)
		out.Slug = &slug
	}
	if desc := k.textField(ctx, pr, ".property-description", "description "+locale); desc != nil {
		clean := cleanUnits(*desc)
		out.Description = &clean
	}

	html, err := retry.DoValue(ctx, k.reporter, k.fieldOpts("page content "+locale), func(context.Context) (string, error) {
		return pr.Content()
	})
	if err == nil {
		if features, ferr := parseFeatures(html); ferr == nil && len(features) > 0 {
			out.Features = features
		}
	}

	return out, nil
}

func (k *kwSource) ScrapeComplex(ctx context.Context, pr pagereader.Reader, url string) (*models.ScrapedComplex, error) {
	name, err := retry.DoValue(ctx, k.reporter, k.fieldOpts("complex name"), func(context.Context) (string, error) {
		return pr.Text("h1.development-title, h1.property-title")
	})
	if err != nil {
		return nil, fmt.Errorf("read complex name: %w", err)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: complex at %s has no name", models.ErrInvalid, url)
	}

	out := &models.ScrapedComplex{
		SiteID: k.site.ID,
		URL:    url,
		Name:   name,
		Slug:   slugify(name),
	}

	if html, err := pr.Content(); err == nil {
		if photos, perr := parsePhotoURLs(html); perr == nil {
			out.PhotoURLs = photos
		}
	}

	return out, nil
}

// textField reads one field with a bounded retry. A field that never
// appears is reported and dropped; the caller keeps going.
func (k *kwSource) textField(ctx context.Context, pr pagereader.Reader, selector, name string) *string {
	text, err := retry.DoValue(ctx, k.reporter, k.fieldOpts("extract "+name), func(context.Context) (string, error) {
		value, err := pr.Text(selector)
		if err != nil {
			return "", err
		}
		value = strings.TrimSpace(value)
		if value == "" {
			return "", fmt.Errorf("empty %s", name)
		}
		return value, nil
	})
	if err != nil {
		return nil
	}
	return &text
}
