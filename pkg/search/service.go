package search

import (
	"context"

	"github.com/go-go-golems/agentres/pkg/resilience"
	"github.com/rs/zerolog/log"
)

// Service is the adapter callers use: a primary engine retried with backoff,
// followed by single-attempt fallbacks tried in order.
type Service struct {
	name      string
	primary   Engine
	fallbacks []Engine
	policy    resilience.Policy
}

var _ Searcher = &Service{}

type ServiceOption func(*Service)

func WithFallbacks(engines ...Engine) ServiceOption {
	return func(s *Service) {
		s.fallbacks = append(s.fallbacks, engines...)
	}
}

func WithRetryPolicy(p resilience.Policy) ServiceOption {
	return func(s *Service) {
		s.policy = p
	}
}

func WithName(name string) ServiceOption {
	return func(s *Service) {
		s.name = name
	}
}

func NewService(primary Engine, options ...ServiceOption) *Service {
	s := &Service{
		name:    primary.Name(),
		primary: primary,
		policy:  resilience.SearchPolicy(),
	}
	for _, o := range options {
		o(s)
	}
	return s
}

func (s *Service) Name() string {
	return s.name
}

// Search sanitizes the query and runs the fallback chain. Total failure
// returns an empty slice.
func (s *Service) Search(ctx context.Context, query string) []Result {
	clean := Sanitize(query)
	if clean == "" {
		log.Warn().Str("query", query).Msg("query sanitized to empty or invalid")
		return []Result{}
	}

	attempts := []resilience.Attempt[Result]{{
		Name: s.primary.Name(),
		Run: func(ctx context.Context) ([]Result, error) {
			return resilience.Do(ctx, s.policy, "search-"+s.primary.Name(), func(ctx context.Context) ([]Result, error) {
				res, err := s.primary.Search(ctx, clean)
				if err == nil && len(res) == 0 {
					err = ErrNoResults
				}
				return res, err
			})
		},
	}}
	for _, e := range s.fallbacks {
		e := e
		attempts = append(attempts, resilience.Attempt[Result]{
			Name: e.Name(),
			Run: func(ctx context.Context) ([]Result, error) {
				return e.Search(ctx, clean)
			},
		})
	}

	res, used := resilience.FirstNonEmpty(ctx, attempts...)
	if used == "" {
		log.Warn().Str("query", clean).Msg("all search engines failed")
		return []Result{}
	}
	if used != s.primary.Name() {
		log.Info().Str("query", clean).Str("engine", used).Msg("search answered by fallback engine")
	}
	return res
}

type single struct {
	engine Engine
}

// Single exposes one engine as a Searcher: one sanitized attempt, failures become empty results.
func Single(engine Engine) Searcher {
	return &single{engine: engine}
}

func (s *single) Name() string {
	return s.engine.Name()
}

func (s *single) Search(ctx context.Context, query string) []Result {
	clean := Sanitize(query)
	if clean == "" {
		return []Result{}
	}
	res, err := s.engine.Search(ctx, clean)
	if err != nil {
		log.Warn().Err(err).Str("engine", s.engine.Name()).Str("query", clean).Msg("search failed")
		return []Result{}
	}
	return res
}
