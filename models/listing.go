package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ListingStatus string

const (
	StatusNew      ListingStatus = "new"
	StatusStandard ListingStatus = "standard"
	StatusRecent   ListingStatus = "recent"
	StatusAgreed   ListingStatus = "agreed"
	StatusSold     ListingStatus = "sold"
)

// ErrInvalid marks validation failures that should not fail a whole batch.
var ErrInvalid = errors.New("invalid")

// LocaleText maps a locale code ("pt", "en") to a translated value.
type LocaleText map[string]string

// LocaleList maps a locale code to a list of translated values.
type LocaleList map[string][]string

// Listing is the canonical record for one source URL. Locale-sensitive
// fields are stored as locale-keyed maps; everything else is
// locale-invariant.
type Listing struct {
	ID              uuid.UUID         `json:"id" db:"id"`
	SiteID          string            `json:"site_id" db:"site_id"`
	URL             string            `json:"url" db:"url"`
	Price           *string           `json:"price" db:"price"`
	Status          ListingStatus     `json:"status" db:"status"`
	StatusChangedAt *time.Time        `json:"status_changed_at" db:"status_changed_at"`
	Attributes      map[string]string `json:"attributes" db:"attributes"`
	Address         *string           `json:"address" db:"address"`
	PhotoURLs       []string          `json:"photo_urls" db:"photo_urls"`
	Titles          LocaleText        `json:"titles" db:"titles"`
	Descriptions    LocaleText        `json:"descriptions" db:"descriptions"`
	Features        LocaleList        `json:"features" db:"features"`
	Slugs           LocaleText        `json:"slugs" db:"slugs"`
	ComplexID       *uuid.UUID        `json:"complex_id" db:"complex_id"`
	LastSeenAt      time.Time         `json:"last_seen_at" db:"last_seen_at"`
	DeletedAt       *time.Time        `json:"deleted_at" db:"deleted_at"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at" db:"updated_at"`
}

func (l *Listing) IsDeleted() bool {
	return l.DeletedAt != nil
}

func (l *Listing) HasPhotos() bool {
	return len(l.PhotoURLs) > 0
}

func (l *Listing) Validate() error {
	if l.URL == "" {
		return fmt.Errorf("%w: listing url is empty", ErrInvalid)
	}
	switch l.Status {
	case StatusNew, StatusStandard, StatusRecent, StatusAgreed, StatusSold:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalid, l.Status)
	}
	return nil
}

// ScrapedListing is the result of one extraction pass. Nil pointers mean
// the field was not extracted this pass and must not overwrite stored data.
type ScrapedListing struct {
	SiteID      string
	URL         string
	Locale      string
	Price       *string
	Status      *ListingStatus
	Attributes  map[string]string
	Address     *string
	Title       *string
	Description *string
	Features    []string
	Slug        *string
	PhotoURLs   []string
	ComplexURL  *string
}

// ScrapedComplex is the extraction result for a development/complex page.
type ScrapedComplex struct {
	SiteID    string
	URL       string
	Name      string
	Slug      string
	PhotoURLs []string
}

// ListingComplex groups listings that belong to one development and owns
// its own ordered photo gallery.
type ListingComplex struct {
	ID        uuid.UUID `json:"id" db:"id"`
	SiteID    string    `json:"site_id" db:"site_id"`
	Name      string    `json:"name" db:"name"`
	URL       string    `json:"url" db:"url"`
	Slug      string    `json:"slug" db:"slug"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
