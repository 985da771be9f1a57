package crawler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultWaitTimeout is the maximum time to wait for the page data script
	DefaultWaitTimeout = 15 * time.Second
	// DefaultPageLoadTimeout is the maximum time to wait for page load
	DefaultPageLoadTimeout = 30 * time.Second
)

// Browser wraps a rod browser used when a talk page has to be rendered
type Browser struct {
	browser   *rod.Browser
	launcher  *launcher.Launcher
	userAgent string
	mu        sync.Mutex
	closed    bool
}

// BrowserConfig holds configuration for the browser
type BrowserConfig struct {
	// Headless indicates if browser should run in headless mode
	Headless bool
	// UserAgent is the browser user agent string
	UserAgent string
	// ProxyURL is the proxy server URL
	ProxyURL string
}

// NewBrowserWithConfig launches a browser and connects to it
func NewBrowserWithConfig(cfg *BrowserConfig) (*Browser, error) {
	if cfg == nil {
		cfg = &BrowserConfig{Headless: true}
	}

	l := launcher.New().
		Headless(cfg.Headless).
		Set("disable-gpu").
		Set("no-sandbox").
		Set("disable-dev-shm-usage").
		Set("disable-extensions").
		Set("disable-background-networking").
		Set("mute-audio").
		Set("no-first-run")

	if cfg.ProxyURL != "" {
		l = l.Proxy(cfg.ProxyURL)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	log.Info().Bool("headless", cfg.Headless).Msg("Browser launched")

	return &Browser{
		browser:   browser,
		launcher:  l,
		userAgent: cfg.UserAgent,
	}, nil
}

// FetchRenderedHTML loads a page and returns its HTML once waitSelector
// appears or DefaultWaitTimeout passes
func (b *Browser) FetchRenderedHTML(ctx context.Context, url string, waitSelector string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return "", fmt.Errorf("browser is closed")
	}

	page, err := b.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return "", fmt.Errorf("failed to create page: %w", err)
	}
	defer page.Close()

	page = page.Context(ctx).Timeout(DefaultPageLoadTimeout)

	if b.userAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: b.userAgent}); err != nil {
			log.Debug().Err(err).Msg("Failed to set user agent")
		}
	}

	if err := page.Navigate(url); err != nil {
		return "", fmt.Errorf("failed to navigate to %s: %w", url, err)
	}

	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("failed to wait for page load: %w", err)
	}

	if waitSelector != "" {
		waitCtx, cancel := context.WithTimeout(ctx, DefaultWaitTimeout)
		defer cancel()

		// A missing selector still leaves whatever the page rendered
		if _, err := page.Context(waitCtx).Element(waitSelector); err != nil {
			log.Debug().Err(err).Str("selector", waitSelector).Msg("Selector not found")
		}
	}

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("failed to get HTML: %w", err)
	}

	return html, nil
}

// Close closes the browser and releases all resources
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	var err error
	if b.browser != nil {
		if closeErr := b.browser.Close(); closeErr != nil {
			err = fmt.Errorf("failed to close browser: %w", closeErr)
		}
	}
	if b.launcher != nil {
		b.launcher.Cleanup()
	}

	return err
}
