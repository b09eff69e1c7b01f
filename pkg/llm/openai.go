package llm

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

type OpenAIClient struct {
	client *go_openai.Client
	model  string
}

var _ Client = &OpenAIClient{}

// NewOpenAIClient builds a client for OpenAI or any API-compatible endpoint.
// An empty baseURL keeps the library default.
func NewOpenAIClient(apiKey, baseURL, model string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("no API key for openai")
	}
	if model == "" {
		model = "gpt-4o"
	}
	config := go_openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIClient{
		client: go_openai.NewClientWithConfig(config),
		model:  model,
	}, nil
}

func (c *OpenAIClient) Complete(ctx context.Context, messages []Message, temperature float32) (string, error) {
	msgs := make([]go_openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, go_openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	// the request field is omitempty, so an explicit 0 would fall back to the server default
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	resp, err := c.client.CreateChatCompletion(ctx, go_openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: temperature,
	})
	if err != nil {
		return "", errors.Wrap(err, "openai chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	log.Debug().
		Str("model", c.model).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("openai completion done")

	return resp.Choices[0].Message.Content, nil
}
