package scrape

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-go-golems/agentres/pkg/search"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Renderer fetches a page and returns its HTML after scripts had a chance to run.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
	Close() error
}

const maxBodyBytes = 5 << 20

// HTTPRenderer does a plain GET. It does not run javascript.
type HTTPRenderer struct {
	client *http.Client
}

var _ Renderer = &HTTPRenderer{}

func NewHTTPRenderer(timeout time.Duration) *HTTPRenderer {
	return &HTTPRenderer{client: &http.Client{Timeout: timeout}}
}

func (h *HTTPRenderer) Render(ctx context.Context, url string) (string, error) {
	b, err := fetch(ctx, h.client, url, maxBodyBytes)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (h *HTTPRenderer) Close() error {
	return nil
}

func fetch(ctx context.Context, client *http.Client, url string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", search.RandomUserAgent())

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Errorf("unexpected status code %d for %s", resp.StatusCode, url)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}
	return b, nil
}

// BrowserRenderer drives a headless chromium. The browser is launched on
// first use and shared by all renders; every render gets its own page.
type BrowserRenderer struct {
	// Bin is the browser binary. Empty lets the launcher find or download one.
	Bin string
	// IdleWait is how long the network must be quiet before the page counts as loaded.
	IdleWait time.Duration
	// Timeout bounds navigation plus the idle wait.
	Timeout time.Duration

	mu      sync.Mutex
	browser *rod.Browser
}

var _ Renderer = &BrowserRenderer{}

func NewBrowserRenderer(bin string, timeout time.Duration) *BrowserRenderer {
	return &BrowserRenderer{
		Bin:      bin,
		IdleWait: 500 * time.Millisecond,
		Timeout:  timeout,
	}
}

func (b *BrowserRenderer) ensureBrowser() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		return b.browser, nil
	}

	l := launcher.New().Headless(true)
	if b.Bin != "" {
		l = l.Bin(b.Bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, errors.Wrap(err, "could not launch browser")
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, errors.Wrap(err, "could not connect to browser")
	}
	log.Debug().Str("control_url", controlURL).Msg("headless browser started")

	b.browser = browser
	return browser, nil
}

func (b *BrowserRenderer) Render(ctx context.Context, url string) (string, error) {
	browser, err := b.ensureBrowser()
	if err != nil {
		return "", err
	}

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", errors.Wrap(err, "could not open page")
	}
	defer func(p *rod.Page) {
		_ = p.Close()
	}(page)

	page = page.Timeout(b.Timeout)
	wait := page.WaitRequestIdle(b.IdleWait, nil, nil, nil)
	if err := page.Navigate(url); err != nil {
		return "", errors.Wrapf(err, "could not navigate to %s", url)
	}
	wait()

	html, err := page.HTML()
	if err != nil {
		return "", errors.Wrap(err, "could not read page html")
	}
	return html, nil
}

func (b *BrowserRenderer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.browser = nil
	return err
}
