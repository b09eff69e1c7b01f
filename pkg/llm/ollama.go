package llm

import (
	"context"
	"strings"

	"github.com/jmorganca/ollama/api"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// OllamaClient talks to a local ollama server. The host is taken from OLLAMA_HOST.
type OllamaClient struct {
	client *api.Client
	model  string
}

var _ Client = &OllamaClient{}

func NewOllamaClient(model string) (*OllamaClient, error) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, errors.Wrap(err, "could not create ollama client")
	}
	if model == "" {
		model = "llama3"
	}
	return &OllamaClient{client: client, model: model}, nil
}

func (c *OllamaClient) Complete(ctx context.Context, messages []Message, temperature float32) (string, error) {
	ollamaMessages := []api.Message{}
	for _, m := range messages {
		ollamaMessages = append(ollamaMessages, api.Message{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	stream := false
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: ollamaMessages,
		Stream:   &stream,
		Options: map[string]interface{}{
			"temperature": temperature,
		},
	}

	var sb strings.Builder
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		sb.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", errors.Wrap(err, "ollama chat failed")
	}
	if sb.Len() == 0 {
		return "", ErrEmptyCompletion
	}

	log.Debug().Str("model", c.model).Int("chars", sb.Len()).Msg("ollama completion done")
	return sb.String(), nil
}
