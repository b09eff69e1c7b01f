// Package knowledge persists research results and retrieves them by semantic
// similarity to prime later planning.
package knowledge

import (
	"context"
	"math"
	"strings"

	"github.com/go-go-golems/agentres/pkg/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Metadata is stored next to every chunk. Values must be JSON serializable.
type Metadata map[string]interface{}

type Snippet struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Score    float64  `json:"score"`
	Metadata Metadata `json:"metadata,omitempty"`
}

// Store is a semantic store: Add chunks and indexes text, Query returns the
// closest chunks, best first.
type Store interface {
	Add(ctx context.Context, text string, metadata Metadata) ([]string, error)
	Query(ctx context.Context, text string, limit int) ([]Snippet, error)
	Close() error
}

var ErrEmptyText = errors.New("nothing to store")

const DefaultContextLimit = 3

// RelevantContext renders the closest stored snippets for query, or "" when
// the store has nothing or fails.
func RelevantContext(ctx context.Context, store Store, query string, limit int) string {
	if store == nil {
		return ""
	}
	if limit <= 0 {
		limit = DefaultContextLimit
	}
	snippets, err := store.Query(ctx, query, limit)
	if err != nil {
		log.Warn().Err(err).Str("query", query).Msg("knowledge query failed")
		return ""
	}
	blocks := make([]string, 0, len(snippets))
	for _, s := range snippets {
		blocks = append(blocks, "Previous research: "+s.Text)
	}
	return strings.Join(blocks, "\n\n")
}

// ResearchMetadata is attached to every stored answer.
func ResearchMetadata(s *session.State) Metadata {
	return Metadata{
		"type":       "research_result",
		"query":      s.Query,
		"sources":    s.Sources.Sorted(),
		"session_id": s.SessionID,
	}
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// NopStore stores nothing and never finds anything.
type NopStore struct{}

var _ Store = NopStore{}

func (NopStore) Add(ctx context.Context, text string, metadata Metadata) ([]string, error) {
	return []string{}, nil
}

func (NopStore) Query(ctx context.Context, text string, limit int) ([]Snippet, error) {
	return []Snippet{}, nil
}

func (NopStore) Close() error {
	return nil
}
