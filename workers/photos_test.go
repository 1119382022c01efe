package workers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"kw_crawler/models"
)

type fakePhotoStore struct {
	pending []models.Photo
	updates map[uuid.UUID]struct {
		status   string
		s3Key    *string
		attempts int
	}
}

func newFakePhotoStore(pending ...models.Photo) *fakePhotoStore {
	return &fakePhotoStore{
		pending: pending,
		updates: map[uuid.UUID]struct {
			status   string
			s3Key    *string
			attempts int
		}{},
	}
}

func (s *fakePhotoStore) GetPendingPhotos(_ context.Context, _ int, maxAttempts int) ([]models.Photo, error) {
	var out []models.Photo
	for _, p := range s.pending {
		if p.Attempts < maxAttempts {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakePhotoStore) UpdatePhotoMirror(_ context.Context, id uuid.UUID, status string, s3Key *string, attempts int) error {
	s.updates[id] = struct {
		status   string
		s3Key    *string
		attempts int
	}{status, s3Key, attempts}
	return nil
}

type recordingUploader struct {
	keys []string
}

func (u *recordingUploader) Upload(_ context.Context, key string, data io.Reader, _ string) error {
	io.Copy(io.Discard, data)
	u.keys = append(u.keys, key)
	return nil
}

func TestPhotoWorkerMirrorsPendingPhotos(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jpeg-bytes"))
	}))
	defer server.Close()

	photo := models.Photo{ID: uuid.New(), ImageURL: server.URL + "/photo-1.jpg", Status: models.PhotoStatusPending}
	store := newFakePhotoStore(photo)
	uploader := &recordingUploader{}
	w := NewPhotoWorker(store, uploader, server.Client())

	w.processBatch(context.Background(), 10)

	update, ok := store.updates[photo.ID]
	if !ok {
		t.Fatal("expected a mirror update")
	}
	if update.status != models.PhotoStatusUploaded {
		t.Fatalf("expected uploaded, got %s", update.status)
	}
	if update.s3Key == nil || !strings.HasPrefix(*update.s3Key, "photos/") || !strings.HasSuffix(*update.s3Key, ".jpg") {
		t.Fatalf("unexpected key %v", update.s3Key)
	}
	if len(uploader.keys) != 1 || uploader.keys[0] != *update.s3Key {
		t.Fatalf("uploader saw %v, store recorded %v", uploader.keys, *update.s3Key)
	}
}

func TestPhotoWorkerCountsFailedAttempts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	photo := models.Photo{ID: uuid.New(), ImageURL: server.URL + "/gone.jpg", Attempts: 2}
	store := newFakePhotoStore(photo)
	w := NewPhotoWorker(store, &recordingUploader{}, server.Client())

	w.processBatch(context.Background(), 10)

	update, ok := store.updates[photo.ID]
	if !ok {
		t.Fatal("expected a failure update")
	}
	if update.status != models.PhotoStatusFailed {
		t.Fatalf("third failure should park the photo, got %s", update.status)
	}
	if update.attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", update.attempts)
	}
	if update.s3Key != nil {
		t.Fatal("failed mirror must not record a key")
	}
}

func TestPhotoWorkerSkipsExhaustedPhotos(t *testing.T) {
	photo := models.Photo{ID: uuid.New(), ImageURL: "https://cdn.example.test/dead.jpg", Attempts: maxPhotoAttempts}
	store := newFakePhotoStore(photo)
	uploader := &recordingUploader{}
	w := NewPhotoWorker(store, uploader, nil)

	w.processBatch(context.Background(), 10)

	if len(store.updates) != 0 {
		t.Fatalf("exhausted photos must not be touched, got %d updates", len(store.updates))
	}
	if len(uploader.keys) != 0 {
		t.Fatalf("exhausted photos must not be uploaded, got %v", uploader.keys)
	}
}

func TestGuessExtension(t *testing.T) {
	cases := []struct {
		url, contentType, want string
	}{
		{"https://cdn.example.test/a/photo.webp", "", ".webp"},
		{"https://cdn.example.test/a/photo", "image/png", ".png"},
		{"https://cdn.example.test/a/photo.php", "mystery/type", ".jpg"},
	}
	for _, c := range cases {
		if got := guessExtension(c.url, c.contentType); got != c.want {
			t.Fatalf("guessExtension(%q, %q) = %q, want %q", c.url, c.contentType, got, c.want)
		}
	}
}
