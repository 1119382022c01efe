package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"kw_crawler/models"
)

// listingStore is the slice of the Postgres store the service needs.
type listingStore interface {
	GetListingByURL(ctx context.Context, url string) (*models.Listing, error)
	UpsertListing(ctx context.Context, l *models.Listing) error
	SoftDeleteListing(ctx context.Context, url string, ts time.Time) (bool, error)
	SetListingComplex(ctx context.Context, url string, complexID uuid.UUID) error
	GetComplexByURL(ctx context.Context, url string) (*models.ListingComplex, error)
	UpsertComplex(ctx context.Context, c *models.ListingComplex) error
	GetPhotosByOwner(ctx context.Context, ownerType string, ownerID uuid.UUID) ([]models.Photo, error)
	SavePhoto(ctx context.Context, p *models.Photo) error
}

// ListingService merges extraction results into the canonical listings
// table. All writes are idempotent - applying the same scrape twice
// leaves one row with the same content.
type ListingService struct {
	store listingStore
}

func NewListingService(store listingStore) *ListingService {
	return &ListingService{store: store}
}

// ApplyResult contains the outcome of applying one scrape.
type ApplyResult struct {
	ListingID     uuid.UUID
	IsNew         bool
	StatusChanged bool
	PhotosSaved   int
}

// FindByURL returns the stored listing for a URL, or nil when unknown.
func (s *ListingService) FindByURL(ctx context.Context, url string) (*models.Listing, error) {
	return s.store.GetListingByURL(ctx, url)
}

// ApplyScrape merges a scrape result into the stored listing. Nil fields
// in the result never overwrite stored values; locale-keyed fields merge
// under the scrape's locale. A successful scrape also clears any previous
// soft delete, since the page was evidently reachable.
func (s *ListingService) ApplyScrape(ctx context.Context, scraped *models.ScrapedListing) (*ApplyResult, error) {
	result := &ApplyResult{}
	now := time.Now()

	existing, err := s.store.GetListingByURL(ctx, scraped.URL)
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}

	var listing *models.Listing
	if existing == nil {
		listing = &models.Listing{
			ID:        uuid.New(),
			SiteID:    scraped.SiteID,
			URL:       scraped.URL,
			Status:    models.StatusStandard,
			CreatedAt: now,
			UpdatedAt: now,
		}
		result.IsNew = true
	} else {
		listing = existing
	}

	if scraped.Status != nil {
		// status_changed_at only records transitions, never the first sighting
		if !result.IsNew && listing.Status != *scraped.Status {
			listing.StatusChangedAt = &now
			result.StatusChanged = true
		}
		listing.Status = *scraped.Status
	}
	if scraped.Price != nil {
		listing.Price = scraped.Price
	}
	if scraped.Address != nil {
		listing.Address = scraped.Address
	}
	if scraped.Attributes != nil {
		listing.Attributes = scraped.Attributes
	}
	if scraped.PhotoURLs != nil {
		listing.PhotoURLs = scraped.PhotoURLs
	}

	locale := scraped.Locale
	if scraped.Title != nil {
		if listing.Titles == nil {
			listing.Titles = models.LocaleText{}
		}
		listing.Titles[locale] = *scraped.Title
	}
	if scraped.Description != nil {
		if listing.Descriptions == nil {
			listing.Descriptions = models.LocaleText{}
		}
		listing.Descriptions[locale] = *scraped.Description
	}
	if scraped.Features != nil {
		if listing.Features == nil {
			listing.Features = models.LocaleList{}
		}
		listing.Features[locale] = scraped.Features
	}
	if scraped.Slug != nil {
		if listing.Slugs == nil {
			listing.Slugs = models.LocaleText{}
		}
		listing.Slugs[locale] = *scraped.Slug
	}

	listing.LastSeenAt = now
	listing.DeletedAt = nil
	listing.UpdatedAt = now

	if err := listing.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.UpsertListing(ctx, listing); err != nil {
		return nil, fmt.Errorf("upsert listing: %w", err)
	}
	result.ListingID = listing.ID

	if len(scraped.PhotoURLs) > 0 {
		saved, err := s.syncPhotos(ctx, models.OwnerStory, listing.ID, scraped.PhotoURLs)
		if err != nil {
			log.Printf("Warning: failed to sync photos for %s: %v", scraped.URL, err)
		}
		result.PhotosSaved = saved
	}

	return result, nil
}

// MarkUnavailable soft-deletes the listing for a URL. If the URL was never
// stored, a tombstone row is created so the deletion is still recorded.
func (s *ListingService) MarkUnavailable(ctx context.Context, siteID, url string) error {
	now := time.Now()

	matched, err := s.store.SoftDeleteListing(ctx, url, now)
	if err != nil {
		return fmt.Errorf("soft delete listing: %w", err)
	}
	if matched {
		return nil
	}

	tombstone := &models.Listing{
		ID:         uuid.New(),
		SiteID:     siteID,
		URL:        url,
		Status:     models.StatusStandard,
		LastSeenAt: now,
		DeletedAt:  &now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.UpsertListing(ctx, tombstone); err != nil {
		return fmt.Errorf("create tombstone: %w", err)
	}
	return nil
}

// ApplyComplex upserts a scraped development page and its photo gallery.
func (s *ListingService) ApplyComplex(ctx context.Context, scraped *models.ScrapedComplex) (*models.ListingComplex, error) {
	now := time.Now()

	existing, err := s.store.GetComplexByURL(ctx, scraped.URL)
	if err != nil {
		return nil, fmt.Errorf("get complex: %w", err)
	}

	complex := &models.ListingComplex{
		ID:        uuid.New(),
		SiteID:    scraped.SiteID,
		Name:      scraped.Name,
		URL:       scraped.URL,
		Slug:      scraped.Slug,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing != nil {
		complex.ID = existing.ID
		complex.CreatedAt = existing.CreatedAt
	}
	if err := s.store.UpsertComplex(ctx, complex); err != nil {
		return nil, fmt.Errorf("upsert complex: %w", err)
	}

	if len(scraped.PhotoURLs) > 0 {
		if _, err := s.syncPhotos(ctx, models.OwnerComplex, complex.ID, scraped.PhotoURLs); err != nil {
			log.Printf("Warning: failed to sync complex photos for %s: %v", scraped.URL, err)
		}
	}

	return complex, nil
}

// FindComplexByURL returns the stored complex for a URL, or nil.
func (s *ListingService) FindComplexByURL(ctx context.Context, url string) (*models.ListingComplex, error) {
	return s.store.GetComplexByURL(ctx, url)
}

// LinkComplex attaches a listing to its development.
func (s *ListingService) LinkComplex(ctx context.Context, listingURL string, complexID uuid.UUID) error {
	return s.store.SetListingComplex(ctx, listingURL, complexID)
}

// syncPhotos inserts gallery photos that are not stored yet. New photos
// carry no explicit order so the store appends them after the current
// maximum; the first photo of an empty gallery becomes the main one.
func (s *ListingService) syncPhotos(ctx context.Context, ownerType string, ownerID uuid.UUID, urls []string) (int, error) {
	existing, err := s.store.GetPhotosByOwner(ctx, ownerType, ownerID)
	if err != nil {
		return 0, fmt.Errorf("get photos: %w", err)
	}

	known := make(map[string]bool, len(existing))
	hasMain := false
	for _, p := range existing {
		known[p.ImageURL] = true
		if p.Main {
			hasMain = true
		}
	}

	saved := 0
	now := time.Now()
	for _, url := range urls {
		if url == "" || known[url] {
			continue
		}
		photo := &models.Photo{
			ID:        uuid.New(),
			OwnerType: ownerType,
			OwnerID:   ownerID,
			ImageURL:  url,
			Main:      !hasMain,
			Status:    models.PhotoStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.store.SavePhoto(ctx, photo); err != nil {
			log.Printf("Warning: failed to save photo %s: %v", url, err)
			continue
		}
		hasMain = true
		known[url] = true
		saved++
	}
	return saved, nil
}
