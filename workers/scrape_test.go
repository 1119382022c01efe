package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"kw_crawler/models"
)

type fakeQueue struct {
	mu       sync.Mutex
	due      []models.ScrapeJob
	done     []int64
	failed   []int64
	released bool
}

func (q *fakeQueue) ClaimDueJobs(limit int) ([]models.ScrapeJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if limit > len(q.due) {
		limit = len(q.due)
	}
	jobs := q.due[:limit]
	q.due = q.due[limit:]
	return jobs, nil
}

func (q *fakeQueue) MarkJobDone(id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.done = append(q.done, id)
	return nil
}

func (q *fakeQueue) MarkJobFailed(id int64, _ string, _ int, _ time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed = append(q.failed, id)
	return nil
}

func (q *fakeQueue) ReleaseStuckJobs(time.Duration) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.released = true
	return 0, nil
}

func (q *fakeQueue) PendingJobCount() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.due), nil
}

type fakeRunner struct {
	mu      sync.Mutex
	paused  bool
	calls   []string
	failURL string
}

func (r *fakeRunner) ScrapeOne(_ context.Context, _, url string, _ bool) error {
	r.mu.Lock()
	r.calls = append(r.calls, url)
	r.mu.Unlock()
	if url == r.failURL {
		return errors.New("navigation timeout")
	}
	return nil
}

func (r *fakeRunner) Paused() bool { return r.paused }

func jobs(urls ...string) []models.ScrapeJob {
	var out []models.ScrapeJob
	for i, url := range urls {
		out = append(out, models.ScrapeJob{ID: int64(i + 1), SiteID: "kw_pt", URL: url})
	}
	return out
}

func TestProcessBatchMarksOutcomes(t *testing.T) {
	queue := &fakeQueue{due: jobs(
		"https://example.test/imovel/ok",
		"https://example.test/imovel/broken",
	)}
	runner := &fakeRunner{failURL: "https://example.test/imovel/broken"}
	w := NewScrapeWorker(queue, runner, 2)

	w.processBatch(context.Background(), 10)

	if len(runner.calls) != 2 {
		t.Fatalf("expected 2 scrapes, got %d", len(runner.calls))
	}
	if len(queue.done) != 1 || queue.done[0] != 1 {
		t.Fatalf("expected job 1 done, got %v", queue.done)
	}
	if len(queue.failed) != 1 || queue.failed[0] != 2 {
		t.Fatalf("expected job 2 failed, got %v", queue.failed)
	}
	if !queue.released {
		t.Fatal("stuck jobs should be released before claiming")
	}
}

func TestProcessBatchSkipsWhilePaused(t *testing.T) {
	queue := &fakeQueue{due: jobs("https://example.test/imovel/1")}
	runner := &fakeRunner{paused: true}
	w := NewScrapeWorker(queue, runner, 2)

	w.processBatch(context.Background(), 10)

	if len(runner.calls) != 0 {
		t.Fatal("paused worker must not scrape")
	}
	if len(queue.due) != 1 {
		t.Fatal("paused worker must leave the queue untouched")
	}
}

func TestTriggerDoesNotBlock(t *testing.T) {
	w := NewScrapeWorker(&fakeQueue{}, &fakeRunner{}, 1)
	// repeated triggers collapse into one pending signal
	w.Trigger()
	w.Trigger()
	w.Trigger()
}
