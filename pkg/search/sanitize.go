package search

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	markerRe      = regexp.MustCompile("[`{}\\[\\]\"]")
	punctuationRe = regexp.MustCompile(`[!@#$%^&*()_=+|;:'<>,/~]`)
)

// stopQueries are tokens a planner tends to emit when it leaks its own
// output format into search tasks.
var stopQueries = map[string]struct{}{
	"json":     {},
	"queries":  {},
	"ask_user": {},
	"query":    {},
}

// Sanitize strips code fences, brackets and punctuation noise from a query and
// collapses whitespace. '.' and '?' are kept. It returns "" when what is left
// is shorter than 3 characters or is a known non-query.
func Sanitize(query string) string {
	q := markerRe.ReplaceAllString(query, " ")
	q = punctuationRe.ReplaceAllString(q, " ")
	q = strings.Join(strings.Fields(q), " ")

	if utf8.RuneCountInString(q) < 3 {
		return ""
	}
	if _, ok := stopQueries[strings.ToLower(q)]; ok {
		return ""
	}
	return q
}
