package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// maxBodySize caps how much of a page is read
const maxBodySize = 16 << 20

// renderer renders a page in a headless browser
type renderer interface {
	FetchRenderedHTML(ctx context.Context, url string, waitSelector string) (string, error)
	Close() error
}

// HTTPFetcher implements Fetcher using plain HTTP requests
type HTTPFetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	config    *FetcherConfig
	browser   renderer
	browserMu sync.Mutex
	// newBrowser is replaced in tests
	newBrowser func(cfg *FetcherConfig) (renderer, error)
}

// NewHTTPFetcher creates a new HTTP fetcher instance
func NewHTTPFetcher(cfg *FetcherConfig) (*HTTPFetcher, error) {
	if cfg == nil {
		cfg = DefaultFetcherConfig()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultFetcherConfig().UserAgent
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	// Create HTTP client with connection pooling
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	// Configure proxy if provided
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}

	// Token bucket; rate.Limit is events per second
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst)

	return &HTTPFetcher{
		client:  client,
		limiter: limiter,
		config:  cfg,
		newBrowser: func(cfg *FetcherConfig) (renderer, error) {
			return NewBrowserWithConfig(&BrowserConfig{
				Headless:  true,
				UserAgent: cfg.UserAgent,
				ProxyURL:  cfg.ProxyURL,
			})
		},
	}, nil
}

// Fetch retrieves a page once. With browser fallback enabled a failed HTTP
// fetch is rendered headlessly instead of being retried.
func (f *HTTPFetcher) Fetch(ctx context.Context, targetURL string) (string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return "", &FetchError{URL: targetURL, Err: fmt.Errorf("rate limiter: %w", err)}
	}

	html, err := f.fetch(ctx, targetURL)
	if err == nil {
		return html, nil
	}

	if !f.config.BrowserFallback || ctx.Err() != nil {
		return "", err
	}

	log.Warn().Err(err).Str("url", targetURL).Msg("HTTP fetch failed, trying browser")
	rendered, browserErr := f.fetchWithBrowser(ctx, targetURL)
	if browserErr != nil {
		log.Warn().Err(browserErr).Str("url", targetURL).Msg("Browser fetch also failed")
		return "", err
	}
	return rendered, nil
}

// fetch performs a single HTTP request
func (f *HTTPFetcher) fetch(ctx context.Context, targetURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return "", &FetchError{URL: targetURL, Err: fmt.Errorf("create request: %w", err)}
	}

	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/json;q=0.8,*/*;q=0.7")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Connection", "keep-alive")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", &FetchError{URL: targetURL, Err: err}
	}
	defer resp.Body.Close()

	log.Debug().
		Int("status", resp.StatusCode).
		Str("url", targetURL).
		Str("finalURL", resp.Request.URL.String()).
		Msg("HTTP response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &FetchError{URL: targetURL, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", &FetchError{URL: targetURL, Err: fmt.Errorf("read body: %w", err)}
	}

	html := string(body)
	if strings.TrimSpace(html) == "" {
		return "", &FetchError{URL: targetURL}
	}
	log.Debug().Int("length", len(html)).Msg("Received document")

	return html, nil
}

// fetchWithBrowser renders the page with the headless browser
func (f *HTTPFetcher) fetchWithBrowser(ctx context.Context, targetURL string) (string, error) {
	browser, err := f.getBrowser()
	if err != nil {
		return "", err
	}

	html, err := browser.FetchRenderedHTML(ctx, targetURL, nextDataSelector)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(html) == "" {
		return "", &FetchError{URL: targetURL}
	}
	return html, nil
}

// getBrowser returns the browser instance, creating it if necessary
func (f *HTTPFetcher) getBrowser() (renderer, error) {
	f.browserMu.Lock()
	defer f.browserMu.Unlock()

	if f.browser == nil {
		browser, err := f.newBrowser(f.config)
		if err != nil {
			return nil, err
		}
		f.browser = browser
	}

	return f.browser, nil
}

// Close releases fetcher resources
func (f *HTTPFetcher) Close() error {
	f.browserMu.Lock()
	defer f.browserMu.Unlock()

	if f.browser != nil {
		return f.browser.Close()
	}
	return nil
}

// GetLimiter returns the rate limiter for testing purposes
func (f *HTTPFetcher) GetLimiter() *rate.Limiter {
	return f.limiter
}
