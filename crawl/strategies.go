package crawl

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"net/http"
)

// CancelCheck reports whether the in-flight operation has been
// cancelled. Every strategy calls it between units of work and stops
// early, without error, when it returns true.
type CancelCheck func() bool

// ProgressFunc reports crawl progress: status is a short state word
// ("crawling", "batch_start", ...), progress is 0-100, message is a
// human-readable line.
type ProgressFunc func(status string, progress int, message string)

const defaultBatchSize = 50
const defaultMaxDepth = 3

// Result is a fetched page augmented with the crawl_type the
// orchestrator should attribute the whole operation to.
type Result struct {
	Page
	CrawlType string
}

// Strategies bundles the fetcher every crawl strategy shares.
type Strategies struct {
	fetcher *Fetcher
}

// NewStrategies returns a Strategies using a default Fetcher.
func NewStrategies() *Strategies {
	return &Strategies{fetcher: NewFetcher()}
}

// SinglePage fetches exactly one URL, applying the GitHub blob-to-raw
// transform first.
func (s *Strategies) SinglePage(ctx context.Context, url string, cancel CancelCheck, progress ProgressFunc) ([]Result, error) {
	if cancel != nil && cancel() {
		return nil, nil
	}
	target := TransformGithubURL(url)
	if progress != nil {
		progress("crawling", 0, "fetching "+target)
	}
	page, err := s.fetcher.Fetch(ctx, target)
	if err != nil {
		return nil, err
	}
	if progress != nil {
		progress("crawling", 100, "fetched "+target)
	}
	return []Result{{Page: *page, CrawlType: "single_page"}}, nil
}

// Batch fetches urls in slices of batchSize (default 50, clamped >=1),
// reporting smooth progress after each slice and exiting early on
// cancellation with whatever was gathered so far.
func (s *Strategies) Batch(ctx context.Context, urls []string, batchSize int, cancel CancelCheck, progress ProgressFunc) ([]Result, error) {
	if batchSize < 1 {
		batchSize = defaultBatchSize
	}
	var results []Result
	total := len(urls)

	for start := 0; start < total; start += batchSize {
		if cancel != nil && cancel() {
			break
		}
		end := start + batchSize
		if end > total {
			end = total
		}
		slice := urls[start:end]
		if progress != nil {
			progress("batch_start", int(math.Floor(float64(start)/float64(total)*100)), fmt.Sprintf("crawling batch %d-%d of %d", start+1, end, total))
		}

		for _, u := range slice {
			if cancel != nil && cancel() {
				break
			}
			target := TransformGithubURL(u)
			page, err := s.fetcher.Fetch(ctx, target)
			if err != nil {
				continue // a single failed URL does not abort the batch
			}
			results = append(results, Result{Page: *page, CrawlType: "batch"})
		}

		processed := end
		if progress != nil {
			progress("crawling", int(math.Floor(float64(processed)/float64(total)*100)), fmt.Sprintf("processed %d/%d", processed, total))
		}
	}
	return results, nil
}

// Recursive performs a breadth-first crawl over a start URL's internal
// links up to maxDepth (default 3), de-duplicating by canonical key and
// skipping binary file links. Progress combines completed-depth
// fraction with within-depth batch fraction.
func (s *Strategies) Recursive(ctx context.Context, startURL string, maxDepth int, cancel CancelCheck, progress ProgressFunc) ([]Result, error) {
	if maxDepth < 1 {
		maxDepth = defaultMaxDepth
	}
	startHost := urlHost(startURL)
	visited := map[string]bool{CanonicalKey(startURL): true}
	frontier := []string{startURL}
	var results []Result

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		if cancel != nil && cancel() {
			break
		}
		depthBase := float64(depth) / float64(maxDepth) * 100
		var nextFrontier []string

		for i, u := range frontier {
			if cancel != nil && cancel() {
				break
			}
			target := TransformGithubURL(u)
			page, err := s.fetcher.Fetch(ctx, target)
			if progress != nil {
				within := float64(i) / float64(len(frontier)) / float64(maxDepth) * 100
				progress("crawling", int(depthBase+within), fmt.Sprintf("depth %d: %s", depth, u))
			}
			if err != nil {
				continue
			}
			results = append(results, Result{Page: *page, CrawlType: "recursive"})

			for _, link := range page.Links {
				if IsBinaryFile(link) || urlHost(link) != startHost {
					continue
				}
				key := CanonicalKey(link)
				if visited[key] {
					continue
				}
				visited[key] = true
				nextFrontier = append(nextFrontier, link)
			}
		}
		frontier = nextFrontier
	}
	return results, nil
}

type sitemapURLSet struct {
	URLs []sitemapURL `xml:"url"`
}
type sitemapURL struct {
	Loc string `xml:"loc"`
}

// SitemapLocations fetches a sitemap URL and returns the <loc> entries
// it lists. A fetch or parse error is logged by the caller via the
// returned error but always yields an empty (not nil-panicking) slice.
func SitemapLocations(ctx context.Context, client *http.Client, sitemapURL string) ([]string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, err
	}

	var set sitemapURLSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil, err
	}

	locs := make([]string, 0, len(set.URLs))
	for _, u := range set.URLs {
		if u.Loc != "" {
			locs = append(locs, u.Loc)
		}
	}
	return locs, nil
}

// Sitemap fetches the sitemap at url and batch-crawls every listed
// location.
func (s *Strategies) Sitemap(ctx context.Context, url string, batchSize int, cancel CancelCheck, progress ProgressFunc) ([]Result, error) {
	locs, err := SitemapLocations(ctx, nil, url)
	if err != nil {
		return nil, err
	}
	results, err := s.Batch(ctx, locs, batchSize, cancel, progress)
	for i := range results {
		results[i].CrawlType = "sitemap"
	}
	return results, err
}
