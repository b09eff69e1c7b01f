package scrape

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
)

const (
	DefaultMaxChars  = 5000
	TruncationMarker = "..."
)

// CleanText reduces an HTML document to its visible text: scripts, styles
// and other non-content nodes are dropped and whitespace is collapsed.
func CleanText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", errors.Wrap(err, "could not parse html")
	}
	doc.Find("script, style, noscript, template, svg").Remove()
	return CollapseWhitespace(doc.Text()), nil
}

func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate caps s at max characters and appends TruncationMarker when it cut anything.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i] + TruncationMarker
		}
		n++
	}
	return s
}

// IsPDF routes documents and preprint pages to the PDF extractor.
func IsPDF(url string) bool {
	u := strings.ToLower(url)
	return strings.HasSuffix(u, ".pdf") || strings.Contains(u, "arxiv.org")
}
