// Package config holds the settings of an agentres installation. Values come
// from agentres.yaml, AGENTRES_* environment variables and command line flags,
// all merged by viper.
package config

import (
	"strings"
	"time"

	"github.com/go-go-golems/agentres/pkg/resilience"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type LLM struct {
	Provider   string        `mapstructure:"provider"`
	Model      string        `mapstructure:"model"`
	APIKey     string        `mapstructure:"api-key"`
	BaseURL    string        `mapstructure:"base-url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries uint          `mapstructure:"max-retries"`
}

type Embeddings struct {
	Provider   string `mapstructure:"provider"`
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api-key"`
	BaseURL    string `mapstructure:"base-url"`
	Dimensions int    `mapstructure:"dimensions"`
	CacheSize  int    `mapstructure:"cache-size"`
}

type Search struct {
	MaxResults   int               `mapstructure:"max-results"`
	Timeout      time.Duration     `mapstructure:"timeout"`
	Swarm        bool              `mapstructure:"swarm"`
	TavilyAPIKey string            `mapstructure:"tavily-api-key"`
	GoogleAPIKey string            `mapstructure:"google-api-key"`
	GoogleCSEID  string            `mapstructure:"google-cse-id"`
	KagiAPIKey   string            `mapstructure:"kagi-api-key"`
	Retry        resilience.Policy `mapstructure:"retry"`
}

type Scrape struct {
	Timeout            time.Duration     `mapstructure:"timeout"`
	MaxChars           int               `mapstructure:"max-chars"`
	Renderer           string            `mapstructure:"renderer"`
	BrowserBin         string            `mapstructure:"browser-bin"`
	AllowHTTP          bool              `mapstructure:"allow-http"`
	AllowLocalNetworks bool              `mapstructure:"allow-local-networks"`
	BlockedDomains     []string          `mapstructure:"blocked-domains"`
	DeepScrape         bool              `mapstructure:"deep-scrape"`
	Retry              resilience.Policy `mapstructure:"retry"`
}

type Knowledge struct {
	Backend        string `mapstructure:"backend"`
	Path           string `mapstructure:"path"`
	WeaviateHost   string `mapstructure:"weaviate-host"`
	WeaviateScheme string `mapstructure:"weaviate-scheme"`
	WeaviateClass  string `mapstructure:"weaviate-class"`
	ChunkSize      int    `mapstructure:"chunk-size"`
}

type Audit struct {
	Path string `mapstructure:"path"`
}

type Sandbox struct {
	Interpreter string        `mapstructure:"interpreter"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type Export struct {
	Dir string `mapstructure:"dir"`
}

type Sessions struct {
	Dir string `mapstructure:"dir"`
}

type Settings struct {
	LLM        LLM        `mapstructure:"llm"`
	Embeddings Embeddings `mapstructure:"embeddings"`
	Search     Search     `mapstructure:"search"`
	Scrape     Scrape     `mapstructure:"scrape"`
	Knowledge  Knowledge  `mapstructure:"knowledge"`
	Audit      Audit      `mapstructure:"audit"`
	Sandbox    Sandbox    `mapstructure:"sandbox"`
	Export     Export     `mapstructure:"export"`
	Sessions   Sessions   `mapstructure:"sessions"`
	// Prompts optionally points at a YAML file overriding the built-in prompts.
	Prompts string `mapstructure:"prompts"`
}

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	BackendSQLite   = "sqlite"
	BackendWeaviate = "weaviate"
	BackendNone     = "none"

	RendererBrowser = "browser"
	RendererHTTP    = "http"
)

func Defaults() *Settings {
	return &Settings{
		LLM: LLM{
			Provider:   ProviderOpenAI,
			Model:      "gpt-4o",
			Timeout:    2 * time.Minute,
			MaxRetries: resilience.LLMPolicy().MaxTries,
		},
		Embeddings: Embeddings{
			Provider:   ProviderOpenAI,
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			CacheSize:  1000,
		},
		Search: Search{
			MaxResults: 5,
			Timeout:    15 * time.Second,
			Swarm:      true,
			Retry:      resilience.SearchPolicy(),
		},
		Scrape: Scrape{
			Timeout:   30 * time.Second,
			MaxChars:  5000,
			Renderer:  RendererBrowser,
			AllowHTTP: true,
			Retry:     resilience.ScrapePolicy(),
		},
		Knowledge: Knowledge{
			Backend:        BackendSQLite,
			Path:           "agentres-knowledge.db",
			WeaviateHost:   "localhost:8080",
			WeaviateScheme: "http",
			WeaviateClass:  "ResearchChunk",
			ChunkSize:      800,
		},
		Audit:    Audit{Path: "agentres.db"},
		Sandbox:  Sandbox{Interpreter: "python3", Timeout: 30 * time.Second},
		Export:   Export{Dir: "exports"},
		Sessions: Sessions{Dir: "sessions"},
	}
}

// SetDefaults registers every default with v so that environment variables
// are picked up for keys that appear in no config file.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	for k, val := range map[string]interface{}{
		"llm.provider":                  d.LLM.Provider,
		"llm.model":                     d.LLM.Model,
		"llm.api-key":                   d.LLM.APIKey,
		"llm.base-url":                  d.LLM.BaseURL,
		"llm.timeout":                   d.LLM.Timeout,
		"llm.max-retries":               d.LLM.MaxRetries,
		"embeddings.provider":           d.Embeddings.Provider,
		"embeddings.model":              d.Embeddings.Model,
		"embeddings.api-key":            d.Embeddings.APIKey,
		"embeddings.base-url":           d.Embeddings.BaseURL,
		"embeddings.dimensions":         d.Embeddings.Dimensions,
		"embeddings.cache-size":         d.Embeddings.CacheSize,
		"search.max-results":            d.Search.MaxResults,
		"search.timeout":                d.Search.Timeout,
		"search.swarm":                  d.Search.Swarm,
		"search.tavily-api-key":         d.Search.TavilyAPIKey,
		"search.google-api-key":         d.Search.GoogleAPIKey,
		"search.google-cse-id":          d.Search.GoogleCSEID,
		"search.kagi-api-key":           d.Search.KagiAPIKey,
		"search.retry.max-tries":        d.Search.Retry.MaxTries,
		"search.retry.initial-interval": d.Search.Retry.InitialInterval,
		"search.retry.max-interval":     d.Search.Retry.MaxInterval,
		"scrape.timeout":                d.Scrape.Timeout,
		"scrape.max-chars":              d.Scrape.MaxChars,
		"scrape.renderer":               d.Scrape.Renderer,
		"scrape.browser-bin":            d.Scrape.BrowserBin,
		"scrape.allow-http":             d.Scrape.AllowHTTP,
		"scrape.allow-local-networks":   d.Scrape.AllowLocalNetworks,
		"scrape.blocked-domains":        d.Scrape.BlockedDomains,
		"scrape.deep-scrape":            d.Scrape.DeepScrape,
		"scrape.retry.max-tries":        d.Scrape.Retry.MaxTries,
		"scrape.retry.initial-interval": d.Scrape.Retry.InitialInterval,
		"scrape.retry.max-interval":     d.Scrape.Retry.MaxInterval,
		"knowledge.backend":             d.Knowledge.Backend,
		"knowledge.path":                d.Knowledge.Path,
		"knowledge.weaviate-host":       d.Knowledge.WeaviateHost,
		"knowledge.weaviate-scheme":     d.Knowledge.WeaviateScheme,
		"knowledge.weaviate-class":      d.Knowledge.WeaviateClass,
		"knowledge.chunk-size":          d.Knowledge.ChunkSize,
		"audit.path":                    d.Audit.Path,
		"sandbox.interpreter":           d.Sandbox.Interpreter,
		"sandbox.timeout":               d.Sandbox.Timeout,
		"export.dir":                    d.Export.Dir,
		"sessions.dir":                  d.Sessions.Dir,
		"prompts":                       d.Prompts,
	} {
		v.SetDefault(k, val)
	}
}

// Load unmarshals v on top of the defaults and validates the result.
func Load(v *viper.Viper) (*Settings, error) {
	s := Defaults()
	if err := v.Unmarshal(s); err != nil {
		return nil, errors.Wrap(err, "could not parse configuration")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return errors.Errorf("invalid %s %q, expected one of %s", field, value, strings.Join(allowed, ", "))
}

func (s *Settings) Validate() error {
	if err := oneOf("llm.provider", s.LLM.Provider, ProviderOpenAI, ProviderOllama); err != nil {
		return err
	}
	if err := oneOf("embeddings.provider", s.Embeddings.Provider, ProviderOpenAI, ProviderOllama); err != nil {
		return err
	}
	if err := oneOf("knowledge.backend", s.Knowledge.Backend, BackendSQLite, BackendWeaviate, BackendNone); err != nil {
		return err
	}
	if err := oneOf("scrape.renderer", s.Scrape.Renderer, RendererBrowser, RendererHTTP); err != nil {
		return err
	}
	if s.Search.MaxResults <= 0 {
		return errors.Errorf("search.max-results must be positive, got %d", s.Search.MaxResults)
	}
	if s.Scrape.MaxChars <= 0 {
		return errors.Errorf("scrape.max-chars must be positive, got %d", s.Scrape.MaxChars)
	}
	if s.Knowledge.ChunkSize <= 0 {
		return errors.Errorf("knowledge.chunk-size must be positive, got %d", s.Knowledge.ChunkSize)
	}
	if s.Sandbox.Timeout <= 0 {
		return errors.Errorf("sandbox.timeout must be positive, got %s", s.Sandbox.Timeout)
	}
	return nil
}
