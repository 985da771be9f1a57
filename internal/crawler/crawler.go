package crawler

import (
	"context"
	"fmt"
	"time"
)

// Fetcher retrieves the raw document behind a URL
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// FetchError reports a failed fetch: network error, non-success status or empty body
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("fetch %s: HTTP status %d", e.URL, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("fetch %s: empty body", e.URL)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// FetcherConfig holds configuration for the HTTP fetcher
type FetcherConfig struct {
	// RateLimit is the maximum requests per second
	RateLimit float64
	// Burst is the token bucket size
	Burst int
	// Timeout is the HTTP request timeout
	Timeout time.Duration
	// UserAgent is the HTTP User-Agent header
	UserAgent string
	// ProxyURL is the proxy server URL (HTTP or SOCKS5)
	ProxyURL string
	// BrowserFallback renders the page headlessly when plain HTTP fails
	BrowserFallback bool
}

// DefaultFetcherConfig returns default fetcher configuration
func DefaultFetcherConfig() *FetcherConfig {
	return &FetcherConfig{
		RateLimit: 5,
		Burst:     5,
		Timeout:   20 * time.Second,
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	}
}
