package scraper

import (
	"context"
	"fmt"
	"log"
	"time"

	"kw_crawler/pagereader"
)

// Discovery grows the result list on a search page until one of three
// stop conditions fires: the total time cap, the page's own result count
// being reached, or the list refusing to grow for too many attempts in a
// row.
type Discovery struct {
	MaxTotalTime time.Duration
	MaxNoChange  int
	PollInterval time.Duration
	Clock        pagereader.Clock
}

type DiscoveryResult struct {
	URLs     []string
	Target   int
	Attempts int
	Elapsed  time.Duration
}

func (d *Discovery) Run(ctx context.Context, src ListingSource, pr pagereader.Reader) (*DiscoveryResult, error) {
	start := d.Clock.Now()

	if err := pr.Navigate(ctx, src.SearchURL()); err != nil {
		return nil, fmt.Errorf("navigate to search page: %w", err)
	}

	// A search page that itself shows the unavailable marker has nothing
	// to paginate; most portals never render the marker here, so a missing
	// element just means the page is fine.
	if text, err := pr.Text(src.Markers().StatusSelector); err == nil {
		if containsFold(text, src.Markers().UnavailableText) {
			log.Printf("[%s] Search page is unavailable, returning empty result", src.ID())
			return &DiscoveryResult{Elapsed: d.Clock.Now().Sub(start)}, nil
		}
	}

	target, err := src.TargetCount(pr)
	if err != nil {
		log.Printf("[%s] Warning: no target count, relying on growth detection: %v", src.ID(), err)
		target = 0
	}

	result := &DiscoveryResult{Target: target}
	seen := map[string]bool{}
	noChange := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result.Attempts++

		batch, err := src.CollectListingURLs(pr)
		if err != nil {
			log.Printf("[%s] Warning: collecting listing urls failed: %v", src.ID(), err)
		}
		grew := false
		for _, url := range batch {
			if seen[url] {
				continue
			}
			seen[url] = true
			result.URLs = append(result.URLs, url)
			grew = true
		}

		result.Elapsed = d.Clock.Now().Sub(start)
		if result.Elapsed >= d.MaxTotalTime {
			log.Printf("[%s] Discovery stopped at time cap with %d urls", src.ID(), len(result.URLs))
			break
		}
		if target > 0 && len(result.URLs) >= target {
			log.Printf("[%s] Discovery reached target of %d urls", src.ID(), target)
			break
		}
		if grew {
			noChange = 0
		} else {
			noChange++
			if noChange >= d.MaxNoChange {
				log.Printf("[%s] Discovery stopped after %d attempts without growth (%d urls)", src.ID(), noChange, len(result.URLs))
				break
			}
		}

		if err := src.RequestMore(pr); err != nil {
			log.Printf("[%s] Warning: request more failed: %v", src.ID(), err)
		}
		d.Clock.Sleep(d.PollInterval)
	}

	return result, nil
}
