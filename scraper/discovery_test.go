package scraper

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newDiscovery(clock *fakeClock) *Discovery {
	return &Discovery{
		MaxTotalTime: 30 * time.Minute,
		MaxNoChange:  10,
		PollInterval: 2 * time.Second,
		Clock:        clock,
	}
}

func TestDiscoveryStopsAtTargetCount(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	src := &fakeSource{
		id:     "kw_pt",
		target: 3,
		batches: [][]string{
			{"https://example.test/imovel/1"},
			{"https://example.test/imovel/1", "https://example.test/imovel/2"},
			{"https://example.test/imovel/1", "https://example.test/imovel/2", "https://example.test/imovel/3"},
		},
	}

	result, err := newDiscovery(clock).Run(context.Background(), src, &fakeReader{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.URLs) != 3 {
		t.Fatalf("expected 3 urls, got %d", len(result.URLs))
	}
	if result.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", result.Attempts)
	}
	// no further batch requested once the target is met
	if src.moreCalls != 2 {
		t.Fatalf("expected 2 load-more requests, got %d", src.moreCalls)
	}
}

func TestDiscoveryStopsAfterNoGrowth(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	disc := newDiscovery(clock)
	disc.MaxNoChange = 3
	src := &fakeSource{
		id:        "kw_pt",
		targetErr: errors.New("no count element"),
		batches: [][]string{
			{"https://example.test/imovel/1", "https://example.test/imovel/2"},
		},
	}

	result, err := disc.Run(context.Background(), src, &fakeReader{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.URLs) != 2 {
		t.Fatalf("expected 2 urls, got %d", len(result.URLs))
	}
	// one growing attempt plus exactly MaxNoChange flat ones
	if result.Attempts != 4 {
		t.Fatalf("expected 4 attempts, got %d", result.Attempts)
	}
}

func TestDiscoveryStopsAtTimeCap(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	disc := newDiscovery(clock)
	disc.MaxTotalTime = 5 * time.Second

	// every batch grows, so only the clock can stop the run
	var batches [][]string
	var all []string
	for i := 0; i < 50; i++ {
		all = append(all, "https://example.test/imovel/"+string(rune('a'+i)))
		batches = append(batches, append([]string(nil), all...))
	}
	src := &fakeSource{id: "kw_pt", batches: batches}

	result, err := disc.Run(context.Background(), src, &fakeReader{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Elapsed < disc.MaxTotalTime {
		t.Fatalf("run should only stop past the cap, elapsed %s", result.Elapsed)
	}
	if result.Attempts >= 50 {
		t.Fatalf("time cap did not bound the run, %d attempts", result.Attempts)
	}
}

func TestDiscoveryDeduplicatesAcrossBatches(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	disc := newDiscovery(clock)
	disc.MaxNoChange = 1
	src := &fakeSource{
		id: "kw_pt",
		batches: [][]string{
			{"https://example.test/imovel/b", "https://example.test/imovel/a"},
			{"https://example.test/imovel/a", "https://example.test/imovel/c"},
		},
	}

	result, err := disc.Run(context.Background(), src, &fakeReader{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []string{
		"https://example.test/imovel/b",
		"https://example.test/imovel/a",
		"https://example.test/imovel/c",
	}
	if len(result.URLs) != len(want) {
		t.Fatalf("expected %d urls, got %v", len(want), result.URLs)
	}
	for i, url := range want {
		if result.URLs[i] != url {
			t.Fatalf("expected first-seen order %v, got %v", want, result.URLs)
		}
	}
}

func TestDiscoveryUnavailableSearchPageReturnsEmpty(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	src := &fakeSource{id: "kw_pt", batches: [][]string{{"https://example.test/imovel/1"}}}
	reader := &fakeReader{statusSequence: []string{"Página indisponível"}}

	result, err := newDiscovery(clock).Run(context.Background(), src, reader)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.URLs) != 0 || result.Attempts != 0 {
		t.Fatalf("expected an empty result, got %d urls over %d attempts", len(result.URLs), result.Attempts)
	}
	if src.collects != 0 {
		t.Fatal("an unavailable search page must not be paginated")
	}
}

func TestDiscoveryHonorsContextCancellation(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &fakeSource{id: "kw_pt", batches: [][]string{{"https://example.test/imovel/1"}}}
	if _, err := newDiscovery(clock).Run(ctx, src, &fakeReader{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
