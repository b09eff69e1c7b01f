package llm

import (
	"context"
	"strings"
	"time"

	"github.com/go-go-golems/agentres/pkg/resilience"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func System(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Client is a chat completion service returning a single text reply.
// Temperature 0 must be supported for deterministic classification calls.
type Client interface {
	Complete(ctx context.Context, messages []Message, temperature float32) (string, error)
}

// ErrEmptyCompletion is returned when the provider answered without any choices.
var ErrEmptyCompletion = errors.New("empty completion")

type retryingClient struct {
	client Client
	policy resilience.Policy
}

// Retrying wraps a client so transient failures are retried with backoff.
func Retrying(client Client, policy resilience.Policy) Client {
	return &retryingClient{client: client, policy: policy}
}

func (r *retryingClient) Complete(ctx context.Context, messages []Message, temperature float32) (string, error) {
	return resilience.Do(ctx, r.policy, "llm-complete", func(ctx context.Context) (string, error) {
		reply, err := r.client.Complete(ctx, messages, temperature)
		if err != nil {
			if ctx.Err() != nil {
				return "", resilience.Permanent(err)
			}
			return "", err
		}
		return reply, nil
	})
}

type timeoutClient struct {
	client  Client
	timeout time.Duration
}

// WithTimeout bounds every single completion call. A zero timeout returns client as is.
func WithTimeout(client Client, timeout time.Duration) Client {
	if timeout <= 0 {
		return client
	}
	return &timeoutClient{client: client, timeout: timeout}
}

func (t *timeoutClient) Complete(ctx context.Context, messages []Message, temperature float32) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.client.Complete(ctx, messages, temperature)
}

// Ask is a convenience for the common system+user exchange.
func Ask(ctx context.Context, c Client, system, prompt string, temperature float32) (string, error) {
	messages := []Message{}
	if system != "" {
		messages = append(messages, System(system))
	}
	messages = append(messages, User(prompt))

	if e := log.Trace(); e.Enabled() {
		e.Int("prompt_chars", len(prompt)).
			Int("prompt_tokens", CountTokens(system+prompt)).
			Float32("temperature", temperature).
			Msg("sending completion request")
	}

	reply, err := c.Complete(ctx, messages, temperature)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}
