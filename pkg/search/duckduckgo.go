package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const duckDuckGoHTMLURL = "https://html.duckduckgo.com/html/"

// DuckDuckGo scrapes the keyless HTML endpoint.
type DuckDuckGo struct {
	BaseURL    string
	MaxResults int
	client     *http.Client
}

var _ Engine = &DuckDuckGo{}

func NewDuckDuckGo(maxResults int, timeout time.Duration) *DuckDuckGo {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &DuckDuckGo{
		BaseURL:    duckDuckGoHTMLURL,
		MaxResults: maxResults,
		client:     newHTTPClient(timeout),
	}
}

func (d *DuckDuckGo) Name() string {
	return "duckduckgo"
}

func (d *DuckDuckGo) Search(ctx context.Context, query string) ([]Result, error) {
	u := fmt.Sprintf("%s?q=%s", d.BaseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", RandomUserAgent())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("duckduckgo returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse duckduckgo results")
	}

	results := parseDuckDuckGo(doc)
	if len(results) == 0 {
		return nil, ErrNoResults
	}

	log.Debug().Str("engine", d.Name()).Str("query", query).Int("results", len(results)).Msg("search done")
	return limit(results, d.MaxResults), nil
}

func parseDuckDuckGo(doc *goquery.Document) []Result {
	var results []Result
	doc.Find(".result").Each(func(i int, s *goquery.Selection) {
		if s.HasClass("result--ad") {
			return
		}
		a := s.Find("a.result__a").First()
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		link := unwrapDuckDuckGoLink(href)
		if link == "" {
			return
		}
		results = append(results, Result{
			Title: strings.TrimSpace(a.Text()),
			Link:  link,
			Body:  strings.TrimSpace(s.Find(".result__snippet").First().Text()),
		})
	})
	return results
}

// unwrapDuckDuckGoLink resolves the //duckduckgo.com/l/?uddg=... redirect to the target URL.
func unwrapDuckDuckGoLink(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if strings.HasSuffix(u.Host, "duckduckgo.com") && strings.HasPrefix(u.Path, "/l/") {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}
