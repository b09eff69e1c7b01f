package research

import (
	"fmt"
	"strings"

	"github.com/go-go-golems/agentres/pkg/session"
)

const (
	NoInformationDigest = "No relevant information found."
	LowRelevanceDigest  = "Content found but may not be highly relevant to the query."
	NoContentScraped    = "No content could be scraped."

	// RelevanceThreshold is the share of query terms that must appear in the
	// scraped text for the digest to keep it.
	RelevanceThreshold = 0.3

	// MinCombinedLength is the shortest combined research that still counts as usable.
	MinCombinedLength = 100

	FailedResearch        = "Research failed"
	FailedResearchOnError = "Research failed due to error"

	HaltMessage = "No research results were found or all scraping failed. " +
		"Please try rephrasing your query, check your internet connection, or try again later. " +
		"No answer or review will be generated."
)

var failureSentinels = map[string]struct{}{
	strings.ToLower(FailedResearchOnError): {},
	strings.ToLower(NoContentScraped):      {},
	strings.ToLower(FailedResearch):        {},
}

// Scraped is a single piece of content gathered for a research task.
type Scraped struct {
	Title   string
	URL     string
	Content string
}

// Digest joins the scraped content and keeps it only if it overlaps enough with the query.
func Digest(query string, scraped []Scraped) string {
	if len(scraped) == 0 {
		return NoInformationDigest
	}

	blocks := make([]string, 0, len(scraped))
	for _, s := range scraped {
		blocks = append(blocks, fmt.Sprintf("Source: %s (%s)\n%s\n---", s.Title, s.URL, s.Content))
	}
	content := strings.Join(blocks, "\n")

	if Relevance(query, content) > RelevanceThreshold {
		return content
	}
	return LowRelevanceDigest
}

// Relevance is the fraction of distinct query terms that also occur in text.
// Terms are lowercased and split on whitespace, nothing else.
func Relevance(query, text string) float64 {
	queryTerms := terms(query)
	if len(queryTerms) == 0 {
		return 0
	}
	textTerms := terms(text)
	hits := 0
	for t := range queryTerms {
		if _, ok := textTerms[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(queryTerms))
}

func terms(s string) map[string]struct{} {
	ret := map[string]struct{}{}
	for _, f := range strings.Fields(strings.ToLower(s)) {
		ret[f] = struct{}{}
	}
	return ret
}

// CombineResearch renders every task result as a "Query/Info" block.
func CombineResearch(results []session.TaskResult) string {
	blocks := make([]string, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, fmt.Sprintf("Query: %s\nInfo: %s", r.Query, r.Info))
	}
	return strings.Join(blocks, "\n\n")
}

// IsResearchFailure reports whether combined research is too thin to build an answer on.
func IsResearchFailure(combined string) bool {
	trimmed := strings.TrimSpace(combined)
	if trimmed == "" {
		return true
	}
	if _, ok := failureSentinels[strings.ToLower(trimmed)]; ok {
		return true
	}
	return len([]rune(trimmed)) < MinCombinedLength
}
