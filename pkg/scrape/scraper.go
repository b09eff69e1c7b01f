package scrape

import (
	"context"
	"time"

	"github.com/go-go-golems/agentres/pkg/resilience"
	"github.com/go-go-golems/agentres/pkg/security"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrEmptyContent makes an empty page count as a failed attempt.
var ErrEmptyContent = errors.New("no content extracted")

// Extractor turns a document URL into text. PDFExtractor is the default.
type Extractor interface {
	Extract(ctx context.Context, url string) (string, error)
}

// Scraper fetches the readable content of a URL. It never returns an error:
// any failure after the retries are exhausted yields "".
type Scraper struct {
	renderer Renderer
	pdf      Extractor
	policy   security.ScrapePolicy
	retry    resilience.Policy
	maxChars int
	timeout  time.Duration
}

type Option func(*Scraper)

func WithRenderer(r Renderer) Option {
	return func(s *Scraper) {
		s.renderer = r
	}
}

func WithPDFExtractor(e Extractor) Option {
	return func(s *Scraper) {
		s.pdf = e
	}
}

func WithURLPolicy(p security.ScrapePolicy) Option {
	return func(s *Scraper) {
		s.policy = p
	}
}

func WithRetryPolicy(p resilience.Policy) Option {
	return func(s *Scraper) {
		s.retry = p
	}
}

func WithMaxChars(n int) Option {
	return func(s *Scraper) {
		s.maxChars = n
	}
}

// WithTimeout bounds a single attempt.
func WithTimeout(d time.Duration) Option {
	return func(s *Scraper) {
		s.timeout = d
	}
}

func New(options ...Option) *Scraper {
	s := &Scraper{
		retry:    resilience.ScrapePolicy(),
		maxChars: DefaultMaxChars,
		timeout:  12 * time.Second,
	}
	for _, o := range options {
		o(s)
	}
	if s.renderer == nil {
		s.renderer = NewBrowserRenderer("", s.timeout)
	}
	if s.pdf == nil {
		s.pdf = NewPDFExtractor(s.timeout)
	}
	return s
}

func (s *Scraper) Close() error {
	return s.renderer.Close()
}

func (s *Scraper) Scrape(ctx context.Context, url string) string {
	if err := s.policy.Check(url); err != nil {
		log.Warn().Err(err).Str("url", url).Msg("refusing to scrape url")
		return ""
	}

	text, err := resilience.Do(ctx, s.retry, "scrape", func(ctx context.Context) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return s.scrapeOnce(ctx, url)
	})
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("scraping failed")
		return ""
	}

	log.Debug().Str("url", url).Int("chars", len(text)).Msg("scraped url")
	return text
}

func (s *Scraper) scrapeOnce(ctx context.Context, url string) (string, error) {
	var text string
	if IsPDF(url) {
		t, err := s.pdf.Extract(ctx, url)
		if err != nil {
			return "", err
		}
		text = t
	} else {
		html, err := s.renderer.Render(ctx, url)
		if err != nil {
			return "", err
		}
		t, err := CleanText(html)
		if err != nil {
			return "", err
		}
		text = t
	}

	if text == "" {
		return "", ErrEmptyContent
	}
	return Truncate(text, s.maxChars), nil
}
