package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"kw_crawler/models"
	"kw_crawler/pagereader"
	"kw_crawler/services"
)

// fakeClock advances only when something sleeps, so poll loops run
// instantly while still observing time.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time        { return c.now }
func (c *fakeClock) Sleep(d time.Duration) { c.now = c.now.Add(d) }

// fakeReader scripts the page surface the adapters read from.
type fakeReader struct {
	statusSequence []string // consumed one per Text call on the status selector
	statusIdx      int
	texts          map[string]string
	attrs          map[string]string // "selector name" -> value
	content        string
	navigated      []string
	closed         bool
}

func (r *fakeReader) Navigate(_ context.Context, url string) error {
	r.navigated = append(r.navigated, url)
	return nil
}

func (r *fakeReader) WaitFor(string, time.Duration) error { return nil }

func (r *fakeReader) Text(selector string) (string, error) {
	if selector == ".property-status" && len(r.statusSequence) > 0 {
		idx := r.statusIdx
		if idx >= len(r.statusSequence) {
			idx = len(r.statusSequence) - 1
		}
		r.statusIdx++
		return r.statusSequence[idx], nil
	}
	if text, ok := r.texts[selector]; ok {
		return text, nil
	}
	return "", fmt.Errorf("no element for %s", selector)
}

func (r *fakeReader) TextAll(string) ([]string, error) { return nil, nil }

func (r *fakeReader) Attribute(selector, name string) (string, error) {
	if value, ok := r.attrs[selector+" "+name]; ok {
		return value, nil
	}
	return "", fmt.Errorf("no element for %s", selector)
}

func (r *fakeReader) AttributeAll(string, string) ([]string, error) {
	return nil, nil
}
func (r *fakeReader) Click(string) error       { return nil }
func (r *fakeReader) ScrollToEnd(string) error { return nil }
func (r *fakeReader) Count(string) (int, error) {
	return 0, nil
}

func (r *fakeReader) Content() (string, error) {
	if r.content == "" {
		return "<html></html>", nil
	}
	return r.content, nil
}
func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

// fakeSource scripts discovery batches and extraction results.
type fakeSource struct {
	id        string
	target    int
	targetErr error
	batches   [][]string // per collect call; last batch repeats
	collects  int
	moreCalls int

	details      *models.ScrapedListing
	detailsErr   error
	detailCalls  int
	localized    map[string]*models.ScrapedListing
	switches     []string
	switchErr    error
	complex      *models.ScrapedComplex
	complexCalls int
}

func (f *fakeSource) ID() string        { return f.id }
func (f *fakeSource) SearchURL() string { return "https://example.test/comprar" }

func (f *fakeSource) Markers() PageMarkers {
	return PageMarkers{
		StatusSelector:  ".property-status",
		AwaitingText:    "A carregar",
		UnavailableText: "indisponível",
	}
}

func (f *fakeSource) TargetCount(pagereader.Reader) (int, error) {
	return f.target, f.targetErr
}

func (f *fakeSource) CollectListingURLs(pagereader.Reader) ([]string, error) {
	idx := f.collects
	if idx >= len(f.batches) {
		idx = len(f.batches) - 1
	}
	f.collects++
	if idx < 0 {
		return nil, nil
	}
	return f.batches[idx], nil
}

func (f *fakeSource) RequestMore(pagereader.Reader) error {
	f.moreCalls++
	return nil
}

func (f *fakeSource) SwitchLocale(_ context.Context, _ pagereader.Reader, locale string) error {
	if f.switchErr != nil {
		return f.switchErr
	}
	f.switches = append(f.switches, locale)
	return nil
}

func (f *fakeSource) ScrapeDetails(_ context.Context, _ pagereader.Reader, url string, _ *models.Listing, _ bool, locale string) (*models.ScrapedListing, error) {
	f.detailCalls++
	if f.detailsErr != nil {
		return nil, f.detailsErr
	}
	out := *f.details
	out.URL = url
	out.Locale = locale
	return &out, nil
}

func (f *fakeSource) ScrapeLocalized(_ context.Context, _ pagereader.Reader, url, locale string) (*models.ScrapedListing, error) {
	if l, ok := f.localized[locale]; ok {
		out := *l
		out.URL = url
		out.Locale = locale
		return &out, nil
	}
	return &models.ScrapedListing{SiteID: f.id, URL: url, Locale: locale}, nil
}

func (f *fakeSource) ScrapeComplex(_ context.Context, _ pagereader.Reader, url string) (*models.ScrapedComplex, error) {
	f.complexCalls++
	if f.complex == nil {
		return nil, fmt.Errorf("no complex scripted")
	}
	out := *f.complex
	out.URL = url
	return &out, nil
}

// fakeSink records everything the orchestrator hands over.
type fakeSink struct {
	listings    map[string]*models.Listing
	complexes   map[string]*models.ListingComplex
	applied     []*models.ScrapedListing
	applyErr    error
	unavailable []string
	linked      map[string]uuid.UUID
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		listings:  map[string]*models.Listing{},
		complexes: map[string]*models.ListingComplex{},
		linked:    map[string]uuid.UUID{},
	}
}

func (s *fakeSink) FindByURL(_ context.Context, url string) (*models.Listing, error) {
	return s.listings[url], nil
}

func (s *fakeSink) ApplyScrape(_ context.Context, scraped *models.ScrapedListing) (*services.ApplyResult, error) {
	if s.applyErr != nil {
		return nil, s.applyErr
	}
	s.applied = append(s.applied, scraped)
	return &services.ApplyResult{ListingID: uuid.New()}, nil
}

func (s *fakeSink) MarkUnavailable(_ context.Context, _, url string) error {
	s.unavailable = append(s.unavailable, url)
	return nil
}

func (s *fakeSink) FindComplexByURL(_ context.Context, url string) (*models.ListingComplex, error) {
	return s.complexes[url], nil
}

func (s *fakeSink) ApplyComplex(_ context.Context, scraped *models.ScrapedComplex) (*models.ListingComplex, error) {
	complex := &models.ListingComplex{ID: uuid.New(), SiteID: scraped.SiteID, Name: scraped.Name, URL: scraped.URL}
	s.complexes[scraped.URL] = complex
	return complex, nil
}

func (s *fakeSink) LinkComplex(_ context.Context, listingURL string, complexID uuid.UUID) error {
	s.linked[listingURL] = complexID
	return nil
}
