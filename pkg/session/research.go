package session

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// TaskResult is the outcome of researching a single plan step.
type TaskResult struct {
	Query   string   `json:"query"`
	Info    string   `json:"info"`
	Sources []string `json:"sources"`
}

type ScrapeStatus string

const (
	ScrapeSuccess ScrapeStatus = "success"
	ScrapeFail    ScrapeStatus = "fail"
	ScrapeSnippet ScrapeStatus = "snippet"
)

type URLStatus struct {
	URL    string       `json:"url"`
	Status ScrapeStatus `json:"status"`
}

type CharCount struct {
	URL   string `json:"url"`
	Chars int    `json:"chars"`
}

// ResearchDetail is diagnostic only. Nothing downstream reads it back.
type ResearchDetail struct {
	Query          string      `json:"query"`
	RankedURLs     []string    `json:"ranked_urls"`
	ScrapingStatus []URLStatus `json:"scraping_status"`
	CharCounts     []CharCount `json:"char_counts"`
}

// RenderDetails formats research details for display.
func RenderDetails(details []ResearchDetail) string {
	if len(details) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Research details for each sub-query:\n")
	for _, d := range details {
		fmt.Fprintf(&sb, "\nQuery: %s\n", d.Query)
		if len(d.RankedURLs) > 0 {
			sb.WriteString("Ranked URLs retrieved:\n")
			for i, u := range d.RankedURLs {
				fmt.Fprintf(&sb, "  %d. %s\n", i+1, u)
			}
		}
		if len(d.ScrapingStatus) > 0 {
			sb.WriteString("Scraping status (per URL):\n")
			for _, s := range d.ScrapingStatus {
				fmt.Fprintf(&sb, "  - %s: %s\n", s.URL, s.Status)
			}
		}
		if len(d.CharCounts) > 0 {
			sb.WriteString("Characters scraped (per URL):\n")
			for _, c := range d.CharCounts {
				fmt.Fprintf(&sb, "  %s: %d chars\n", c.URL, c.Chars)
			}
		}
		sb.WriteString("\n---\n")
	}
	return sb.String()
}

// SourceSet is an unordered set of source URLs.
type SourceSet map[string]struct{}

func NewSourceSet(urls ...string) SourceSet {
	s := SourceSet{}
	s.Add(urls...)
	return s
}

func (s SourceSet) Add(urls ...string) {
	for _, u := range urls {
		if u != "" {
			s[u] = struct{}{}
		}
	}
}

func (s SourceSet) Contains(url string) bool {
	_, ok := s[url]
	return ok
}

func (s SourceSet) Len() int {
	return len(s)
}

// Sorted returns the URLs in lexical order.
func (s SourceSet) Sorted() []string {
	ret := make([]string, 0, len(s))
	for u := range s {
		ret = append(ret, u)
	}
	sort.Strings(ret)
	return ret
}

func (s SourceSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *SourceSet) UnmarshalJSON(b []byte) error {
	var urls []string
	if err := json.Unmarshal(b, &urls); err != nil {
		return err
	}
	*s = NewSourceSet(urls...)
	return nil
}
