package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

// Policy describes a bounded exponential retry: the wait doubles after every
// failed attempt, starting at InitialInterval and capped at MaxInterval.
type Policy struct {
	MaxTries        uint          `mapstructure:"max-tries"`
	InitialInterval time.Duration `mapstructure:"initial-interval"`
	MaxInterval     time.Duration `mapstructure:"max-interval"`
}

// SearchPolicy is used for the primary search engine.
func SearchPolicy() Policy {
	return Policy{MaxTries: 5, InitialInterval: 2 * time.Second, MaxInterval: 10 * time.Second}
}

// ScrapePolicy is used for every page or PDF fetch.
func ScrapePolicy() Policy {
	return Policy{MaxTries: 3, InitialInterval: 2 * time.Second, MaxInterval: 8 * time.Second}
}

// LLMPolicy is used for chat completion calls.
func LLMPolicy() Policy {
	return Policy{MaxTries: 3, InitialInterval: time.Second, MaxInterval: 8 * time.Second}
}

func (p Policy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	return b
}

// Permanent marks err so that Do stops retrying immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a Permanent error, the context is done
// or the policy runs out of tries. The last error is returned on exhaustion.
func Do[T any](ctx context.Context, p Policy, name string, op func(ctx context.Context) (T, error)) (T, error) {
	tries := p.MaxTries
	if tries == 0 {
		tries = 1
	}
	attempt := 0
	return backoff.Retry(ctx,
		func() (T, error) {
			attempt++
			return op(ctx)
		},
		backoff.WithBackOff(p.newBackOff()),
		backoff.WithMaxTries(tries),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().
				Err(err).
				Str("operation", name).
				Int("attempt", attempt).
				Uint("max_tries", tries).
				Dur("next", next).
				Msg("attempt failed, retrying")
		}),
	)
}
