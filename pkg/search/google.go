package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const googleCSEURL = "https://www.googleapis.com/customsearch/v1"

// GoogleCSE queries a Google programmable search engine. It only returns
// titles and links; Body is always empty.
type GoogleCSE struct {
	BaseURL    string
	APIKey     string
	CSEID      string
	MaxResults int
	client     *http.Client
}

var _ Engine = &GoogleCSE{}

func NewGoogleCSE(apiKey, cseID string, maxResults int, timeout time.Duration) *GoogleCSE {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &GoogleCSE{
		BaseURL:    googleCSEURL,
		APIKey:     apiKey,
		CSEID:      cseID,
		MaxResults: maxResults,
		client:     newHTTPClient(timeout),
	}
}

func (g *GoogleCSE) Name() string {
	return "google"
}

// Configured reports whether both the key and the engine id are set.
func (g *GoogleCSE) Configured() bool {
	return g.APIKey != "" && g.CSEID != ""
}

type googleResponse struct {
	Items []struct {
		Title string `json:"title"`
		Link  string `json:"link"`
	} `json:"items"`
}

func (g *GoogleCSE) Search(ctx context.Context, query string) ([]Result, error) {
	if !g.Configured() {
		return nil, errors.Wrap(ErrMissingAPIKey, "google custom search")
	}

	v := url.Values{}
	v.Set("q", query)
	v.Set("key", g.APIKey)
	v.Set("cx", g.CSEID)
	v.Set("num", strconv.Itoa(g.MaxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+"?"+v.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("google custom search returned status %d", resp.StatusCode)
	}

	var response googleResponse
	if err := json.Unmarshal(b, &response); err != nil {
		return nil, errors.Wrap(err, "failed to parse response body")
	}

	results := make([]Result, 0, len(response.Items))
	for _, item := range response.Items {
		results = append(results, Result{Title: item.Title, Link: item.Link})
	}
	if len(results) == 0 {
		return nil, ErrNoResults
	}

	log.Info().Str("engine", g.Name()).Int("results", len(results)).Msg("used google custom search for query")
	return limit(results, g.MaxResults), nil
}
