package search

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const tavilyURL = "https://api.tavily.com/search"

type Tavily struct {
	BaseURL    string
	APIKey     string
	MaxResults int
	client     *http.Client
}

var _ Engine = &Tavily{}

func NewTavily(apiKey string, maxResults int, timeout time.Duration) *Tavily {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &Tavily{
		BaseURL:    tavilyURL,
		APIKey:     apiKey,
		MaxResults: maxResults,
		client:     newHTTPClient(timeout),
	}
}

func (t *Tavily) Name() string {
	return "tavily"
}

type tavilyRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func (t *Tavily) Search(ctx context.Context, query string) ([]Result, error) {
	if t.APIKey == "" {
		return nil, errors.Wrap(ErrMissingAPIKey, "tavily")
	}

	body, err := json.Marshal(tavilyRequest{Query: query, MaxResults: t.MaxResults})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Authorization", "Bearer "+t.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
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
		return nil, errors.New("non-200 response received from tavily: " + string(b))
	}

	var response tavilyResponse
	if err := json.Unmarshal(b, &response); err != nil {
		return nil, errors.Wrap(err, "failed to parse response body")
	}

	results := make([]Result, 0, len(response.Results))
	for _, r := range response.Results {
		results = append(results, Result{Title: r.Title, Link: r.URL, Body: r.Content})
	}
	if len(results) == 0 {
		return nil, ErrNoResults
	}

	log.Info().Str("engine", t.Name()).Int("results", len(results)).Msg("used tavily for query")
	return limit(results, t.MaxResults), nil
}
