// Package research gathers web content for plan steps: it fans a task out over
// every configured search engine, merges the results by link and scrapes the
// candidates into a relevance-filtered digest.
package research

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-go-golems/agentres/pkg/search"
	"github.com/go-go-golems/agentres/pkg/session"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Scraper returns the readable content of a URL, or "" when nothing could be fetched.
type Scraper interface {
	Scrape(ctx context.Context, url string) string
}

type Options struct {
	// Swarm searches all engines concurrently. Without it only the first engine is used.
	Swarm bool
	// DeepScrape keeps scraping after the first successful page.
	DeepScrape bool
}

type Aggregator struct {
	Searchers []search.Searcher
	Scraper   Scraper
}

func NewAggregator(scraper Scraper, searchers ...search.Searcher) *Aggregator {
	return &Aggregator{
		Searchers: searchers,
		Scraper:   scraper,
	}
}

// Search returns the merged, deduplicated results for task.
func (a *Aggregator) Search(ctx context.Context, task string, swarm bool) []search.Result {
	if len(a.Searchers) == 0 {
		log.Warn().Str("task", task).Msg("no search engines configured")
		return []search.Result{}
	}

	if !swarm || len(a.Searchers) < 2 {
		merged, _ := MergeResults([][]search.Result{a.Searchers[0].Search(ctx, task)})
		return merged
	}

	var (
		mu        sync.Mutex
		perEngine [][]search.Result
	)
	eg, ctx := errgroup.WithContext(ctx)
	for _, s := range a.Searchers {
		s := s
		eg.Go(func() error {
			res := s.Search(ctx, task)
			log.Debug().Str("engine", s.Name()).Str("task", task).Int("results", len(res)).Msg("swarm engine finished")

			mu.Lock()
			defer mu.Unlock()
			perEngine = append(perEngine, res)
			return nil
		})
	}
	// searchers never fail, the group is only used to join the workers
	_ = eg.Wait()

	merged, _ := MergeResults(perEngine)
	return merged
}

// MergeResults concatenates the per-engine lists in order and drops every
// result whose link was already seen. It also returns the retained links.
func MergeResults(perEngine [][]search.Result) ([]search.Result, []string) {
	seen := map[string]struct{}{}
	merged := []search.Result{}
	links := []string{}
	for _, results := range perEngine {
		for _, r := range results {
			if r.Link == "" {
				continue
			}
			if _, ok := seen[r.Link]; ok {
				continue
			}
			seen[r.Link] = struct{}{}
			merged = append(merged, r)
			links = append(links, r.Link)
		}
	}
	return merged, links
}

// ResearchTask searches, scrapes and digests a single task.
func (a *Aggregator) ResearchTask(ctx context.Context, task string, opts Options) (session.TaskResult, session.ResearchDetail) {
	results := a.Search(ctx, task, opts.Swarm)

	detail := session.ResearchDetail{
		Query:          task,
		RankedURLs:     make([]string, 0, len(results)),
		ScrapingStatus: []session.URLStatus{},
		CharCounts:     []session.CharCount{},
	}
	for _, r := range results {
		detail.RankedURLs = append(detail.RankedURLs, r.Link)
	}

	scraped := []Scraped{}
	for _, r := range results {
		content := ""
		if a.Scraper != nil {
			content = a.Scraper.Scrape(ctx, r.Link)
		}
		if content == "" {
			detail.ScrapingStatus = append(detail.ScrapingStatus, session.URLStatus{URL: r.Link, Status: session.ScrapeFail})
			detail.CharCounts = append(detail.CharCounts, session.CharCount{URL: r.Link, Chars: 0})
			continue
		}

		detail.ScrapingStatus = append(detail.ScrapingStatus, session.URLStatus{URL: r.Link, Status: session.ScrapeSuccess})
		detail.CharCounts = append(detail.CharCounts, session.CharCount{URL: r.Link, Chars: len(content)})
		scraped = append(scraped, Scraped{Title: r.Title, URL: r.Link, Content: content})

		if !opts.DeepScrape {
			break
		}
	}

	if len(scraped) == 0 && len(results) > 0 {
		log.Info().Str("task", task).Msg("no page could be scraped, using search snippets")
		for _, r := range results {
			body := r.Body
			if body == "" {
				body = NoContentScraped
			}
			scraped = append(scraped, Scraped{Title: r.Title, URL: r.Link, Content: body})
			detail.ScrapingStatus = append(detail.ScrapingStatus, session.URLStatus{URL: r.Link, Status: session.ScrapeSnippet})
			detail.CharCounts = append(detail.CharCounts, session.CharCount{URL: r.Link, Chars: len(body)})
		}
	}

	sources := make([]string, 0, len(scraped))
	for _, s := range scraped {
		sources = append(sources, s.URL)
	}

	log.Info().
		Str("task", task).
		Int("results", len(results)).
		Int("sources", len(sources)).
		Bool("swarm", opts.Swarm).
		Bool("deep_scrape", opts.DeepScrape).
		Msg("research task finished")

	return session.TaskResult{
		Query:   task,
		Info:    Digest(task, scraped),
		Sources: sources,
	}, detail
}

// Summary is the one-line audit description of a research pass.
func Summary(results []session.TaskResult, sources session.SourceSet) string {
	return fmt.Sprintf("Researched %d queries, found %d sources", len(results), sources.Len())
}
