package resilience

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Attempt is one link of a fallback chain.
type Attempt[T any] struct {
	Name string
	Run  func(ctx context.Context) ([]T, error)
}

// FirstNonEmpty evaluates attempts left to right and returns the first
// non-empty result together with the name of the attempt that produced it.
// Errors and empty results both move on to the next attempt. When every
// attempt is exhausted the result is nil and the name is empty.
func FirstNonEmpty[T any](ctx context.Context, attempts ...Attempt[T]) ([]T, string) {
	for _, a := range attempts {
		if ctx.Err() != nil {
			log.Debug().Err(ctx.Err()).Str("attempt", a.Name).Msg("context done, abandoning fallback chain")
			return nil, ""
		}
		res, err := a.Run(ctx)
		if err != nil {
			log.Warn().Err(err).Str("attempt", a.Name).Msg("fallback attempt failed")
			continue
		}
		if len(res) == 0 {
			log.Debug().Str("attempt", a.Name).Msg("fallback attempt returned nothing")
			continue
		}
		return res, a.Name
	}
	return nil, ""
}
