package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const kagiEnrichURL = "https://kagi.com/api/v0/enrich/web"

// Kagi uses the enrichment API, which favours non-commercial long-form pages.
type Kagi struct {
	BaseURL    string
	Token      string
	MaxResults int
	client     *http.Client
}

var _ Engine = &Kagi{}

func NewKagi(token string, maxResults int, timeout time.Duration) *Kagi {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &Kagi{
		BaseURL:    kagiEnrichURL,
		Token:      token,
		MaxResults: maxResults,
		client:     newHTTPClient(timeout),
	}
}

func (k *Kagi) Name() string {
	return "kagi"
}

type kagiSearchObject struct {
	T         int    `json:"t"`
	Rank      int    `json:"rank"`
	URL       string `json:"url"`
	Title     string `json:"title"`
	Snippet   string `json:"snippet"`
	Published string `json:"published"`
}

type kagiEnrichResponse struct {
	Meta struct {
		ID   string `json:"id"`
		Node string `json:"node"`
		MS   int    `json:"ms"`
	} `json:"meta"`
	Data []kagiSearchObject `json:"data"`
}

func (k *Kagi) Search(ctx context.Context, query string) ([]Result, error) {
	if k.Token == "" {
		return nil, errors.Wrap(ErrMissingAPIKey, "kagi")
	}

	url_ := fmt.Sprintf("%s?q=%s", k.BaseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url_, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Authorization", "Bot "+k.Token)

	resp, err := k.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("non-200 response received: " + string(body))
	}

	var response kagiEnrichResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, errors.Wrap(err, "failed to parse response body")
	}

	var results []Result
	for _, o := range response.Data {
		// t=0 marks a search result; other types are related searches
		if o.T != 0 || o.URL == "" {
			continue
		}
		results = append(results, Result{Title: o.Title, Link: o.URL, Body: o.Snippet})
	}
	if len(results) == 0 {
		return nil, ErrNoResults
	}

	log.Debug().Str("engine", k.Name()).Int("results", len(results)).Int("ms", response.Meta.MS).Msg("search done")
	return limit(results, k.MaxResults), nil
}
