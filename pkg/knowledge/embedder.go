package knowledge

import (
	"bytes"
	"container/list"
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
)

// Model describes the embedding model behind an Embedder.
type Model struct {
	Name       string
	Dimensions int
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() Model
}

type OpenAIEmbedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

var _ Embedder = &OpenAIEmbedder{}

func NewOpenAIEmbedder(apiKey, baseURL, model string, dimensions int) *OpenAIEmbedder {
	if model == "" {
		model = "text-embedding-3-small"
	}
	if dimensions <= 0 {
		dimensions = 1536
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(config),
		model:      openai.EmbeddingModel(model),
		dimensions: dimensions,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, errors.Wrap(err, "openai embedding request failed")
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding data received from OpenAI")
	}
	return resp.Data[0].Embedding, nil
}

func (e *OpenAIEmbedder) Model() Model {
	return Model{Name: string(e.model), Dimensions: e.dimensions}
}

// OllamaEmbedder talks to the /api/embeddings endpoint of a local ollama server.
type OllamaEmbedder struct {
	baseURL    string
	model      string
	dimensions int
	client     *http.Client
}

var _ Embedder = &OllamaEmbedder{}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float32 `json:"embedding"`
}

func NewOllamaEmbedder(baseURL, model string, dimensions int) *OllamaEmbedder {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "all-minilm"
	}
	if dimensions <= 0 {
		dimensions = 384 // all-minilm
	}
	return &OllamaEmbedder{
		baseURL:    baseURL,
		model:      model,
		dimensions: dimensions,
		client:     &http.Client{},
	}
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var result ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "failed to decode response")
	}
	if len(result.Embedding) == 0 {
		return nil, errors.New("empty embedding")
	}
	return result.Embedding, nil
}

func (e *OllamaEmbedder) Model() Model {
	return Model{Name: e.model, Dimensions: e.dimensions}
}

type cacheEntry struct {
	embedding []float32
	element   *list.Element
}

// CachedEmbedder keeps the most recently used embeddings in memory.
type CachedEmbedder struct {
	embedder Embedder
	cache    map[string]cacheEntry
	lru      *list.List
	maxSize  int
	mu       sync.Mutex
}

var _ Embedder = &CachedEmbedder{}

func NewCachedEmbedder(embedder Embedder, maxSize int) *CachedEmbedder {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &CachedEmbedder{
		embedder: embedder,
		cache:    map[string]cacheEntry{},
		lru:      list.New(),
		maxSize:  maxSize,
	}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	if entry, ok := c.cache[text]; ok {
		c.lru.MoveToFront(entry.element)
		c.mu.Unlock()
		return entry.embedding, nil
	}
	c.mu.Unlock()

	embedding, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.cache[text]; ok {
		c.lru.MoveToFront(entry.element)
		return entry.embedding, nil
	}
	if c.lru.Len() >= c.maxSize {
		if oldest := c.lru.Back(); oldest != nil {
			delete(c.cache, oldest.Value.(string))
			c.lru.Remove(oldest)
		}
	}
	c.cache[text] = cacheEntry{embedding: embedding, element: c.lru.PushFront(text)}
	return embedding, nil
}

func (c *CachedEmbedder) Model() Model {
	return c.embedder.Model()
}

func (c *CachedEmbedder) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
