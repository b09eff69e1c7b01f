// Package app builds a ready to use orchestrator out of the loaded settings.
package app

import (
	"context"
	"io"
	"os"

	"github.com/go-go-golems/agentres/pkg/agents"
	"github.com/go-go-golems/agentres/pkg/audit"
	"github.com/go-go-golems/agentres/pkg/config"
	"github.com/go-go-golems/agentres/pkg/events"
	"github.com/go-go-golems/agentres/pkg/knowledge"
	"github.com/go-go-golems/agentres/pkg/llm"
	"github.com/go-go-golems/agentres/pkg/orchestrator"
	"github.com/go-go-golems/agentres/pkg/prompts"
	"github.com/go-go-golems/agentres/pkg/research"
	"github.com/go-go-golems/agentres/pkg/resilience"
	"github.com/go-go-golems/agentres/pkg/sandbox"
	"github.com/go-go-golems/agentres/pkg/scrape"
	"github.com/go-go-golems/agentres/pkg/search"
	"github.com/go-go-golems/agentres/pkg/security"
	"github.com/go-go-golems/agentres/pkg/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type App struct {
	Settings     *config.Settings
	Deps         agents.Deps
	Bus          *events.HistoryBus
	Orchestrator *orchestrator.Orchestrator

	closers []io.Closer
}

type Option func(*options)

type options struct {
	llm   llm.Client
	store knowledge.Store
}

// WithLLM replaces the client that would be built from the llm settings.
func WithLLM(c llm.Client) Option {
	return func(o *options) {
		o.llm = c
	}
}

// WithKnowledgeStore replaces the store that would be built from the knowledge
// settings. The app closes it.
func WithKnowledgeStore(s knowledge.Store) Option {
	return func(o *options) {
		o.store = s
	}
}

// New opens every backend named in s. Everything opened is released by Close,
// also when New fails halfway.
func New(s *config.Settings, opts ...Option) (_ *App, err error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	a := &App{Settings: s}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	client := o.llm
	if client == nil {
		client, err = NewLLM(s.LLM)
		if err != nil {
			return nil, err
		}
	}

	catalogue := prompts.Default()
	if s.Prompts != "" {
		catalogue, err = prompts.Load(s.Prompts)
		if err != nil {
			return nil, err
		}
	}

	scraper := NewScraper(s.Scrape)
	a.closers = append(a.closers, scraper)

	store := o.store
	if store == nil {
		store, err = NewKnowledgeStore(s.Knowledge, NewEmbedder(s.Embeddings, s.LLM))
		if err != nil {
			return nil, err
		}
	}
	a.closers = append(a.closers, store)

	var auditLog audit.Log = audit.Nop{}
	if s.Audit.Path != "" {
		l, err := audit.NewSQLiteLog(s.Audit.Path)
		if err != nil {
			return nil, err
		}
		auditLog = l
	}
	a.closers = append(a.closers, auditLog)

	a.Deps = agents.Deps{
		LLM:        client,
		Prompts:    catalogue,
		Research:   research.NewAggregator(scraper, NewSearchers(s.Search)...),
		Knowledge:  store,
		Audit:      auditLog,
		Sandbox:    sandbox.NewProcessExecutor(s.Sandbox.Interpreter),
		RunTimeout: s.Sandbox.Timeout,
		ExportDir:  s.Export.Dir,
	}
	a.Bus = events.NewHistoryBus(events.NewZerologAdapter(log.Logger))
	a.closers = append(a.closers, a.Bus)
	a.Orchestrator = orchestrator.New(a.Deps, orchestrator.WithHistoryBus(a.Bus))

	return a, nil
}

// NewSession returns a fresh state carrying the configured research toggles.
func (a *App) NewSession() *session.State {
	s := session.New()
	s.SwarmDisabled = !a.Settings.Search.Swarm
	s.DeepScrape = a.Settings.Scrape.DeepScrape
	return s
}

// Run executes one turn on s.
func (a *App) Run(ctx context.Context, query string, s *session.State) (*session.State, []session.Entry) {
	return a.Orchestrator.Run(ctx, query, s)
}

// Close releases the backends in reverse opening order.
func (a *App) Close() error {
	var ret error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && ret == nil {
			ret = err
		}
	}
	a.closers = nil
	return ret
}

func NewLLM(s config.LLM) (llm.Client, error) {
	var (
		client llm.Client
		err    error
	)
	switch s.Provider {
	case config.ProviderOpenAI:
		client, err = llm.NewOpenAIClient(s.APIKey, s.BaseURL, s.Model)
	case config.ProviderOllama:
		if s.BaseURL != "" {
			// the ollama client only reads its host from the environment
			if err := os.Setenv("OLLAMA_HOST", s.BaseURL); err != nil {
				return nil, errors.Wrap(err, "could not set OLLAMA_HOST")
			}
		}
		client, err = llm.NewOllamaClient(s.Model)
	default:
		return nil, errors.Errorf("unknown llm provider %q", s.Provider)
	}
	if err != nil {
		return nil, err
	}

	policy := resilience.LLMPolicy()
	if s.MaxRetries > 0 {
		policy.MaxTries = s.MaxRetries
	}
	return llm.Retrying(llm.WithTimeout(client, s.Timeout), policy), nil
}

// NewSearchers returns the engines the research aggregator fans out over.
// The first one is a DuckDuckGo service falling back to every keyed engine;
// each keyed engine is also added on its own for swarm searches.
func NewSearchers(s config.Search) []search.Searcher {
	var keyed []search.Engine
	if s.TavilyAPIKey != "" {
		keyed = append(keyed, search.NewTavily(s.TavilyAPIKey, s.MaxResults, s.Timeout))
	}
	if g := search.NewGoogleCSE(s.GoogleAPIKey, s.GoogleCSEID, s.MaxResults, s.Timeout); g.Configured() {
		keyed = append(keyed, g)
	}
	if s.KagiAPIKey != "" {
		keyed = append(keyed, search.NewKagi(s.KagiAPIKey, s.MaxResults, s.Timeout))
	}

	ret := []search.Searcher{
		search.NewService(
			search.NewDuckDuckGo(s.MaxResults, s.Timeout),
			search.WithFallbacks(keyed...),
			search.WithRetryPolicy(s.Retry),
			search.WithName("web"),
		),
	}
	for _, e := range keyed {
		ret = append(ret, search.Single(e))
	}
	return ret
}

func NewScraper(s config.Scrape) *scrape.Scraper {
	var renderer scrape.Renderer
	switch s.Renderer {
	case config.RendererHTTP:
		renderer = scrape.NewHTTPRenderer(s.Timeout)
	default:
		renderer = scrape.NewBrowserRenderer(s.BrowserBin, s.Timeout)
	}
	return scrape.New(
		scrape.WithRenderer(renderer),
		scrape.WithPDFExtractor(scrape.NewPDFExtractor(s.Timeout)),
		scrape.WithURLPolicy(security.ScrapePolicy{
			AllowHTTP:          s.AllowHTTP,
			AllowLocalNetworks: s.AllowLocalNetworks,
			BlockedDomains:     s.BlockedDomains,
		}),
		scrape.WithRetryPolicy(s.Retry),
		scrape.WithMaxChars(s.MaxChars),
		scrape.WithTimeout(s.Timeout),
	)
}

// NewEmbedder builds the cached embedder. The openai key falls back to the llm key.
func NewEmbedder(s config.Embeddings, l config.LLM) knowledge.Embedder {
	var e knowledge.Embedder
	switch s.Provider {
	case config.ProviderOllama:
		e = knowledge.NewOllamaEmbedder(s.BaseURL, s.Model, s.Dimensions)
	default:
		key, baseURL := s.APIKey, s.BaseURL
		if key == "" {
			key = l.APIKey
		}
		if baseURL == "" && l.Provider == config.ProviderOpenAI {
			baseURL = l.BaseURL
		}
		e = knowledge.NewOpenAIEmbedder(key, baseURL, s.Model, s.Dimensions)
	}
	if s.CacheSize <= 0 {
		return e
	}
	return knowledge.NewCachedEmbedder(e, s.CacheSize)
}

func NewKnowledgeStore(s config.Knowledge, e knowledge.Embedder) (knowledge.Store, error) {
	switch s.Backend {
	case config.BackendNone:
		return knowledge.NopStore{}, nil
	case config.BackendWeaviate:
		w, err := knowledge.NewWeaviateStore(s.WeaviateHost, s.WeaviateScheme, s.WeaviateClass, e, s.ChunkSize)
		if err != nil {
			return nil, err
		}
		return w, nil
	case config.BackendSQLite:
		l, err := knowledge.NewSQLiteStore(s.Path, e, s.ChunkSize)
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, errors.Errorf("unknown knowledge backend %q", s.Backend)
	}
}
