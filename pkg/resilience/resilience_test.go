package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(tries uint) Policy {
	return Policy{MaxTries: tries, InitialInterval: time.Millisecond, MaxInterval: 4 * time.Millisecond}
}

func TestDoSucceedsAfterFailures(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), fastPolicy(5), "flaky", func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, calls)
}

func TestDoStopsAtMaxTries(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastPolicy(3), "always-failing", func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("down")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
	assert.Equal(t, 3, calls)
}

func TestDoPermanentStopsImmediately(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastPolicy(5), "blocked", func(ctx context.Context) (int, error) {
		calls++
		return 0, Permanent(errors.New("blocked"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestPolicyDefaults(t *testing.T) {
	assert.Equal(t, Policy{MaxTries: 5, InitialInterval: 2 * time.Second, MaxInterval: 10 * time.Second}, SearchPolicy())
	assert.Equal(t, Policy{MaxTries: 3, InitialInterval: 2 * time.Second, MaxInterval: 8 * time.Second}, ScrapePolicy())
}

func TestBackOffDoublesUpToCap(t *testing.T) {
	b := SearchPolicy().newBackOff()
	b.Reset()
	var got []time.Duration
	for i := 0; i < 5; i++ {
		got = append(got, b.NextBackOff())
	}
	assert.Equal(t, []time.Duration{
		2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second,
	}, got)
}

func TestFirstNonEmpty(t *testing.T) {
	ctx := context.Background()
	failing := Attempt[string]{Name: "a", Run: func(ctx context.Context) ([]string, error) {
		return nil, errors.New("nope")
	}}
	empty := Attempt[string]{Name: "b", Run: func(ctx context.Context) ([]string, error) {
		return []string{}, nil
	}}
	good := Attempt[string]{Name: "c", Run: func(ctx context.Context) ([]string, error) {
		return []string{"x"}, nil
	}}
	never := Attempt[string]{Name: "d", Run: func(ctx context.Context) ([]string, error) {
		t.Fatal("should not be reached")
		return nil, nil
	}}

	res, name := FirstNonEmpty(ctx, failing, empty, good, never)
	assert.Equal(t, []string{"x"}, res)
	assert.Equal(t, "c", name)

	res, name = FirstNonEmpty(ctx, failing, empty)
	assert.Nil(t, res)
	assert.Empty(t, name)
}
