package knowledge

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
)

const DefaultWeaviateClass = "ResearchChunk"

// WeaviateStore keeps chunks in a weaviate class with vectors computed by our
// own embedder. The class is created by weaviate's auto-schema on first insert.
type WeaviateStore struct {
	client    *weaviate.Client
	class     string
	embedder  Embedder
	chunkSize int
}

var _ Store = &WeaviateStore{}

func NewWeaviateStore(host, scheme, class string, embedder Embedder, chunkSize int) (*WeaviateStore, error) {
	if host == "" {
		return nil, errors.New("weaviate knowledge store: empty host")
	}
	if embedder == nil {
		return nil, errors.New("weaviate knowledge store: embedder is nil")
	}
	if scheme == "" {
		scheme = "http"
	}
	if class == "" {
		class = DefaultWeaviateClass
	}

	client, err := weaviate.NewClient(weaviate.Config{Host: host, Scheme: scheme})
	if err != nil {
		return nil, errors.Wrap(err, "could not create weaviate client")
	}
	return &WeaviateStore{
		client:    client,
		class:     class,
		embedder:  embedder,
		chunkSize: chunkSize,
	}, nil
}

func (w *WeaviateStore) Add(ctx context.Context, text string, metadata Metadata) ([]string, error) {
	chunks := ChunkText(text, w.chunkSize)
	if len(chunks) == 0 {
		return nil, ErrEmptyText
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return nil, errors.Wrap(err, "could not marshal metadata")
	}

	ids := make([]string, 0, len(chunks))
	for _, c := range chunks {
		v, err := w.embedder.Embed(ctx, c)
		if err != nil {
			return ids, errors.Wrap(err, "could not embed chunk")
		}
		id := uuid.NewString()
		_, err = w.client.Data().Creator().
			WithClassName(w.class).
			WithID(id).
			WithProperties(map[string]interface{}{
				"text":     c,
				"metadata": string(meta),
			}).
			WithVector(v).
			Do(ctx)
		if err != nil {
			return ids, errors.Wrap(err, "could not store chunk in weaviate")
		}
		ids = append(ids, id)
	}

	log.Debug().Str("class", w.class).Int("chunks", len(ids)).Msg("stored knowledge chunks")
	return ids, nil
}

func (w *WeaviateStore) Query(ctx context.Context, text string, limit int) ([]Snippet, error) {
	if limit <= 0 {
		limit = DefaultContextLimit
	}
	v, err := w.embedder.Embed(ctx, text)
	if err != nil {
		return nil, errors.Wrap(err, "could not embed query")
	}

	nearVector := w.client.GraphQL().NearVectorArgBuilder().WithVector(v)
	resp, err := w.client.GraphQL().Get().
		WithClassName(w.class).
		WithFields(
			graphql.Field{Name: "text"},
			graphql.Field{Name: "metadata"},
			graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "distance"}}},
		).
		WithNearVector(nearVector).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "weaviate query failed")
	}
	if len(resp.Errors) > 0 {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, errors.Errorf("weaviate query failed: %s", strings.Join(msgs, "; "))
	}

	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, errors.Wrap(err, "could not re-encode weaviate response")
	}
	return parseWeaviateHits(raw, w.class)
}

type weaviateHit struct {
	Text       string `json:"text"`
	Metadata   string `json:"metadata"`
	Additional struct {
		ID       string  `json:"id"`
		Distance float64 `json:"distance"`
	} `json:"_additional"`
}

// parseWeaviateHits reads the {"Get": {class: [...]}} shape of a GraphQL Get response.
func parseWeaviateHits(raw []byte, class string) ([]Snippet, error) {
	var data struct {
		Get map[string][]weaviateHit `json:"Get"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, errors.Wrap(err, "could not parse weaviate response")
	}

	ret := []Snippet{}
	for _, h := range data.Get[class] {
		if h.Text == "" {
			continue
		}
		s := Snippet{
			ID:    h.Additional.ID,
			Text:  h.Text,
			Score: 1 - h.Additional.Distance,
		}
		if h.Metadata != "" {
			md := Metadata{}
			if json.Unmarshal([]byte(h.Metadata), &md) == nil {
				s.Metadata = md
			}
		}
		ret = append(ret, s)
	}
	return ret, nil
}

func (w *WeaviateStore) Close() error {
	return nil
}
