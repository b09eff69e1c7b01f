package knowledge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-go-golems/agentres/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// keywordEmbedder maps text onto a handful of topic axes so similarity is predictable.
type keywordEmbedder struct {
	calls atomic.Int32
}

var axes = []string{"vix", "python", "bond", "weather"}

func (k *keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	k.calls.Add(1)
	lower := strings.ToLower(text)
	v := make([]float32, len(axes))
	for i, a := range axes {
		v[i] = float32(strings.Count(lower, a))
	}
	return v, nil
}

func (k *keywordEmbedder) Model() Model {
	return Model{Name: "keywords", Dimensions: len(axes)}
}

func TestSplitSentences(t *testing.T) {
	assert.Equal(t,
		[]string{"One.", "Two!", "Three?", "Four"},
		SplitSentences("One. Two!\n\tThree?  Four"),
	)
	assert.Equal(t, []string{"v1.2 is out.", "Yes"}, SplitSentences("v1.2 is out. Yes"))
	assert.Equal(t, []string{}, SplitSentences(""))
}

func TestChunkTextOverlap(t *testing.T) {
	sentence := strings.Repeat("a", 30) + "."
	text := strings.Repeat(sentence+" ", 10)

	chunks := ChunkText(text, 100)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 140)
	}
	assert.Equal(t, []string{"short text"}, ChunkText("  short text ", 0))
	assert.Equal(t, []string{}, ChunkText("   ", 100))
}

func TestChunkTextCarriesLastSentence(t *testing.T) {
	text := "First sentence here. Second sentence here. Third sentence here."
	chunks := ChunkText(text, 45)
	require.Len(t, chunks, 2)
	assert.Equal(t, "First sentence here. Second sentence here.", chunks[0])
	assert.Equal(t, "Second sentence here. Third sentence here.", chunks[1])
}

func TestCachedEmbedder(t *testing.T) {
	inner := &keywordEmbedder{}
	c := NewCachedEmbedder(inner, 2)
	ctx := context.Background()

	_, err := c.Embed(ctx, "vix")
	require.NoError(t, err)
	_, err = c.Embed(ctx, "vix")
	require.NoError(t, err)
	assert.Equal(t, int32(1), inner.calls.Load())

	_, _ = c.Embed(ctx, "bond")
	_, _ = c.Embed(ctx, "python")
	assert.Equal(t, 2, c.Len())

	// "vix" was evicted
	_, _ = c.Embed(ctx, "vix")
	assert.Equal(t, int32(4), inner.calls.Load())
	assert.Equal(t, "keywords", c.Model().Name)
}

func TestOllamaEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		var req ollamaRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "all-minilm", req.Model)
		assert.Equal(t, "the vix", req.Prompt)
		_ = json.NewEncoder(w).Encode(ollamaResponse{Embedding: []float32{0.1, 0.2}})
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "", 0)
	v, err := e.Embed(context.Background(), "the vix")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, v)
	assert.Equal(t, 384, e.Model().Dimensions)
}

func TestOllamaEmbedderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewOllamaEmbedder(srv.URL, "m", 2).Embed(context.Background(), "x")
	assert.Error(t, err)
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "kb.db"), &keywordEmbedder{}, 0)
	require.NoError(t, err)
	defer func() {
		_ = store.Close()
	}()
	ctx := context.Background()

	ids, err := store.Add(ctx, "The VIX tracks implied volatility of the S&P 500.", Metadata{"query": "vix"})
	require.NoError(t, err)
	assert.Len(t, ids, 1)
	_, err = store.Add(ctx, "Bond yields move inversely to bond prices.", Metadata{"query": "bonds"})
	require.NoError(t, err)

	_, err = store.Add(ctx, "   ", nil)
	assert.ErrorIs(t, err, ErrEmptyText)

	hits, err := store.Query(ctx, "what drives the vix", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Contains(t, hits[0].Text, "VIX")
	assert.Equal(t, "vix", hits[0].Metadata["query"])

	assert.Equal(t,
		"Previous research: The VIX tracks implied volatility of the S&P 500.",
		RelevantContext(ctx, store, "vix", 1))
}

func TestSQLiteStoreClosed(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "kb.db"), &keywordEmbedder{}, 0)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.Query(context.Background(), "vix", 3)
	assert.Error(t, err)
	assert.Equal(t, "", RelevantContext(context.Background(), store, "vix", 3))
}

func TestParseWeaviateHits(t *testing.T) {
	raw := []byte(`{"Get":{"ResearchChunk":[
		{"text":"VIX is a volatility index.","metadata":"{\"query\":\"vix\"}","_additional":{"id":"abc","distance":0.25}},
		{"text":"","metadata":"","_additional":{"id":"empty","distance":0.9}}
	]}}`)

	hits, err := parseWeaviateHits(raw, DefaultWeaviateClass)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "abc", hits[0].ID)
	assert.InDelta(t, 0.75, hits[0].Score, 1e-9)
	assert.Equal(t, "vix", hits[0].Metadata["query"])

	hits, err = parseWeaviateHits([]byte(`{"Get":{}}`), DefaultWeaviateClass)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestResearchMetadata(t *testing.T) {
	s := session.New()
	s.Query = "What is the VIX?"
	s.AddSources("https://b", "https://a")

	md := ResearchMetadata(s)
	assert.Equal(t, "research_result", md["type"])
	assert.Equal(t, []string{"https://a", "https://b"}, md["sources"])
	assert.Equal(t, s.SessionID, md["session_id"])
}

func TestNopStore(t *testing.T) {
	assert.Equal(t, "", RelevantContext(context.Background(), NopStore{}, "vix", 3))
	assert.Equal(t, "", RelevantContext(context.Background(), nil, "vix", 3))
}
