package workers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"kw_crawler/metrics"
	"kw_crawler/models"
)

const maxPhotoAttempts = 3

// photoStore is the slice of the Postgres store the worker needs.
type photoStore interface {
	GetPendingPhotos(ctx context.Context, limit, maxAttempts int) ([]models.Photo, error)
	UpdatePhotoMirror(ctx context.Context, id uuid.UUID, status string, s3Key *string, attempts int) error
}

// Uploader pushes photo bytes to S3-compatible storage.
type Uploader interface {
	Upload(ctx context.Context, key string, data io.Reader, contentType string) error
}

// PhotoWorker downloads listing photos, hashes them, and mirrors them
// into object storage so galleries survive source-side deletions.
type PhotoWorker struct {
	store      photoStore
	httpClient *http.Client
	uploader   Uploader
	trigger    chan struct{}
}

func NewPhotoWorker(store photoStore, uploader Uploader, client *http.Client) *PhotoWorker {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &PhotoWorker{
		store:      store,
		httpClient: client,
		uploader:   uploader,
		trigger:    make(chan struct{}, 1),
	}
}

// Trigger requests an immediate batch outside the ticker cadence.
func (w *PhotoWorker) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

func (w *PhotoWorker) Run(ctx context.Context, batchSize int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Photo worker stopping")
			return
		case <-ticker.C:
			w.processBatch(ctx, batchSize)
		case <-w.trigger:
			w.processBatch(ctx, batchSize)
		}
	}
}

func (w *PhotoWorker) processBatch(ctx context.Context, batchSize int) {
	photos, err := w.store.GetPendingPhotos(ctx, batchSize, maxPhotoAttempts)
	if err != nil {
		log.Printf("Photo worker: query error: %v", err)
		return
	}
	if len(photos) == 0 {
		return
	}

	log.Printf("Photo worker: mirroring %d photos", len(photos))

	var mirrored, failed int
	for i := range photos {
		p := &photos[i]

		key, err := w.mirror(ctx, p)
		if err != nil {
			log.Printf("Photo worker: failed %s: %v", p.ImageURL, err)
			failed++
			metrics.PhotoFailures.Inc()

			attempts := p.Attempts + 1
			status := models.PhotoStatusPending
			if attempts >= maxPhotoAttempts {
				status = models.PhotoStatusFailed
			}
			if uerr := w.store.UpdatePhotoMirror(ctx, p.ID, status, nil, attempts); uerr != nil {
				log.Printf("Photo worker: failed to record failure for %s: %v", p.ID, uerr)
			}
			continue
		}

		if err := w.store.UpdatePhotoMirror(ctx, p.ID, models.PhotoStatusUploaded, &key, p.Attempts); err != nil {
			log.Printf("Photo worker: failed to update %s: %v", p.ID, err)
			failed++
			continue
		}

		mirrored++
		metrics.PhotosMirrored.Inc()

		// rate limit between downloads
		time.Sleep(200 * time.Millisecond)
	}

	if mirrored > 0 || failed > 0 {
		log.Printf("Photo worker: mirrored %d, failed %d", mirrored, failed)
	}
}

// mirror downloads one photo and uploads it under a content-addressed key.
func (w *PhotoWorker) mirror(ctx context.Context, p *models.Photo) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", p.ImageURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "image/*,*/*")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return "", fmt.Errorf("download status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 50*1024*1024))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	hash := sha256.Sum256(data)
	digest := hex.EncodeToString(hash[:])
	ext := guessExtension(p.ImageURL, resp.Header.Get("Content-Type"))
	key := fmt.Sprintf("photos/%s/%s%s", digest[:2], digest, ext)

	if w.uploader != nil {
		contentType := resp.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "image/jpeg"
		}
		if err := w.uploader.Upload(ctx, key, bytes.NewReader(data), contentType); err != nil {
			return "", fmt.Errorf("upload: %w", err)
		}
	}

	return key, nil
}

// guessExtension determines file extension from URL or content-type
func guessExtension(url, contentType string) string {
	ext := strings.ToLower(path.Ext(url))
	if idx := strings.IndexAny(ext, "?#"); idx >= 0 {
		ext = ext[:idx]
	}
	if isImageExt(ext) {
		return ext
	}

	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

func isImageExt(ext string) bool {
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tiff":
		return true
	}
	return false
}
