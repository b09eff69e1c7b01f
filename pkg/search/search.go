package search

import (
	"context"
	"math/rand"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// Result is the engine-independent shape every backend is normalized to.
type Result struct {
	Title string `json:"title"`
	Link  string `json:"link"`
	Body  string `json:"body"`
}

// Engine is a single search backend. Implementations return ErrNoResults
// instead of an empty slice so callers can treat "nothing found" as a failure.
type Engine interface {
	Name() string
	Search(ctx context.Context, query string) ([]Result, error)
}

// Searcher is what the research fan-out talks to. It never fails: total
// failure is an empty result.
type Searcher interface {
	Name() string
	Search(ctx context.Context, query string) []Result
}

var (
	ErrNoResults     = errors.New("no results")
	ErrMissingAPIKey = errors.New("missing API key")
)

const DefaultMaxResults = 5

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/117.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_14_6) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
}

// RandomUserAgent picks a browser user agent from a small fixed pool.
func RandomUserAgent() string {
	return userAgents[rand.Intn(len(userAgents))]
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func limit(results []Result, n int) []Result {
	if n > 0 && len(results) > n {
		return results[:n]
	}
	return results
}
