package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"kw_crawler/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

// =============================================================================
// Listings
// =============================================================================

const listingColumns = `id, site_id, url, price, status, status_changed_at, attributes,
	address, photo_urls, titles, descriptions, features, slugs, complex_id,
	last_seen_at, deleted_at, created_at, updated_at`

func (s *PostgresStore) UpsertListing(ctx context.Context, l *models.Listing) error {
	query := `
		INSERT INTO listings (
			id, site_id, url, price, status, status_changed_at, attributes,
			address, photo_urls, titles, descriptions, features, slugs, complex_id,
			last_seen_at, deleted_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
		)
		ON CONFLICT (url) DO UPDATE SET
			price = COALESCE(EXCLUDED.price, listings.price),
			status = EXCLUDED.status,
			status_changed_at = COALESCE(EXCLUDED.status_changed_at, listings.status_changed_at),
			attributes = COALESCE(EXCLUDED.attributes, listings.attributes),
			address = COALESCE(EXCLUDED.address, listings.address),
			photo_urls = COALESCE(EXCLUDED.photo_urls, listings.photo_urls),
			titles = COALESCE(EXCLUDED.titles, listings.titles),
			descriptions = COALESCE(EXCLUDED.descriptions, listings.descriptions),
			features = COALESCE(EXCLUDED.features, listings.features),
			slugs = COALESCE(EXCLUDED.slugs, listings.slugs),
			complex_id = COALESCE(EXCLUDED.complex_id, listings.complex_id),
			last_seen_at = EXCLUDED.last_seen_at,
			deleted_at = EXCLUDED.deleted_at,
			updated_at = NOW()
		RETURNING id`

	return s.pool.QueryRow(ctx, query,
		l.ID, l.SiteID, l.URL, l.Price, l.Status, l.StatusChangedAt, l.Attributes,
		l.Address, l.PhotoURLs, l.Titles, l.Descriptions, l.Features, l.Slugs, l.ComplexID,
		l.LastSeenAt, l.DeletedAt, l.CreatedAt, l.UpdatedAt,
	).Scan(&l.ID)
}

func (s *PostgresStore) GetListingByURL(ctx context.Context, url string) (*models.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE url = $1`

	var l models.Listing
	err := s.pool.QueryRow(ctx, query, url).Scan(
		&l.ID, &l.SiteID, &l.URL, &l.Price, &l.Status, &l.StatusChangedAt, &l.Attributes,
		&l.Address, &l.PhotoURLs, &l.Titles, &l.Descriptions, &l.Features, &l.Slugs, &l.ComplexID,
		&l.LastSeenAt, &l.DeletedAt, &l.CreatedAt, &l.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// SoftDeleteListing sets deleted_at once; already-deleted rows keep their
// original timestamp. Returns whether a row matched.
func (s *PostgresStore) SoftDeleteListing(ctx context.Context, url string, ts time.Time) (bool, error) {
	query := `
		UPDATE listings
		SET deleted_at = COALESCE(deleted_at, $2), updated_at = NOW()
		WHERE url = $1`

	tag, err := s.pool.Exec(ctx, query, url, ts)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) SetListingComplex(ctx context.Context, url string, complexID uuid.UUID) error {
	query := `UPDATE listings SET complex_id = $2, updated_at = NOW() WHERE url = $1`
	_, err := s.pool.Exec(ctx, query, url, complexID)
	return err
}

func (s *PostgresStore) GetStaleListings(ctx context.Context, staleDuration time.Duration, limit int) ([]models.Listing, error) {
	query := `
		SELECT ` + listingColumns + `
		FROM listings
		WHERE deleted_at IS NULL AND last_seen_at < $1
		ORDER BY last_seen_at
		LIMIT $2`

	staleTime := time.Now().Add(-staleDuration)
	rows, err := s.pool.Query(ctx, query, staleTime, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		var l models.Listing
		if err := rows.Scan(
			&l.ID, &l.SiteID, &l.URL, &l.Price, &l.Status, &l.StatusChangedAt, &l.Attributes,
			&l.Address, &l.PhotoURLs, &l.Titles, &l.Descriptions, &l.Features, &l.Slugs, &l.ComplexID,
			&l.LastSeenAt, &l.DeletedAt, &l.CreatedAt, &l.UpdatedAt,
		); err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// =============================================================================
// Complexes
// =============================================================================

func (s *PostgresStore) UpsertComplex(ctx context.Context, c *models.ListingComplex) error {
	query := `
		INSERT INTO listing_complexes (id, site_id, name, url, slug, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (url) DO UPDATE SET
			name = COALESCE(NULLIF(EXCLUDED.name, ''), listing_complexes.name),
			slug = COALESCE(NULLIF(EXCLUDED.slug, ''), listing_complexes.slug),
			updated_at = NOW()
		RETURNING id`

	return s.pool.QueryRow(ctx, query,
		c.ID, c.SiteID, c.Name, c.URL, c.Slug, c.CreatedAt, c.UpdatedAt,
	).Scan(&c.ID)
}

func (s *PostgresStore) GetComplexByURL(ctx context.Context, url string) (*models.ListingComplex, error) {
	query := `
		SELECT id, site_id, name, url, slug, created_at, updated_at
		FROM listing_complexes WHERE url = $1`

	var c models.ListingComplex
	err := s.pool.QueryRow(ctx, query, url).Scan(
		&c.ID, &c.SiteID, &c.Name, &c.URL, &c.Slug, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// =============================================================================
// Photos (queries; the save-time invariant engine lives in photos.go)
// =============================================================================

const photoColumns = `id, owner_type, owner_id, image_url, sort_order, main,
	s3_key, status, attempts, created_at, updated_at`

func (s *PostgresStore) GetPhotosByOwner(ctx context.Context, ownerType string, ownerID uuid.UUID) ([]models.Photo, error) {
	query := `
		SELECT ` + photoColumns + `
		FROM photos
		WHERE owner_type = $1 AND owner_id = $2
		ORDER BY sort_order NULLS LAST, created_at`

	rows, err := s.pool.Query(ctx, query, ownerType, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var photos []models.Photo
	for rows.Next() {
		var p models.Photo
		if err := rows.Scan(
			&p.ID, &p.OwnerType, &p.OwnerID, &p.ImageURL, &p.Order, &p.Main,
			&p.S3Key, &p.Status, &p.Attempts, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		photos = append(photos, p)
	}
	return photos, rows.Err()
}

func (s *PostgresStore) GetPendingPhotos(ctx context.Context, limit, maxAttempts int) ([]models.Photo, error) {
	query := `
		SELECT ` + photoColumns + `
		FROM photos
		WHERE status = 'pending' AND attempts < $2
		ORDER BY created_at
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit, maxAttempts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var photos []models.Photo
	for rows.Next() {
		var p models.Photo
		if err := rows.Scan(
			&p.ID, &p.OwnerType, &p.OwnerID, &p.ImageURL, &p.Order, &p.Main,
			&p.S3Key, &p.Status, &p.Attempts, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		photos = append(photos, p)
	}
	return photos, rows.Err()
}

func (s *PostgresStore) UpdatePhotoMirror(ctx context.Context, id uuid.UUID, status string, s3Key *string, attempts int) error {
	query := `
		UPDATE photos
		SET status = $2, s3_key = COALESCE($3, s3_key), attempts = $4, updated_at = NOW()
		WHERE id = $1`
	_, err := s.pool.Exec(ctx, query, id, status, s3Key, attempts)
	return err
}
