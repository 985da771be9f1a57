package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// For any configured rate, consecutive requests beyond the burst are spaced
// at least 1/rate apart and the limiter carries the configured burst.
func TestProperty_RateLimitingEnforcement(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	// High rates keep the test fast
	rateLimitGen := gen.Float64Range(20.0, 100.0)

	properties.Property("rate limiter enforces minimum interval", prop.ForAll(
		func(rateLimit float64) bool {
			fetcher, err := NewHTTPFetcher(&FetcherConfig{RateLimit: rateLimit, Burst: 1, Timeout: time.Second})
			if err != nil {
				return false
			}
			defer fetcher.Close()

			limiter := fetcher.GetLimiter()
			expectedMinInterval := time.Duration(float64(time.Second) / rateLimit)

			const numRequests = 3
			timestamps := make([]time.Time, numRequests)
			for i := 0; i < numRequests; i++ {
				reservation := limiter.Reserve()
				if !reservation.OK() {
					return false
				}
				time.Sleep(reservation.Delay())
				timestamps[i] = time.Now()
			}

			// Allow 20% tolerance for timing variations
			minAllowed := time.Duration(float64(expectedMinInterval) * 0.8)
			for i := 2; i < numRequests; i++ {
				if timestamps[i].Sub(timestamps[i-1]) < minAllowed {
					return false
				}
			}
			return true
		},
		rateLimitGen,
	))

	properties.Property("rate limiter uses configured rate and burst", prop.ForAll(
		func(rateLimit float64, burst int) bool {
			fetcher, err := NewHTTPFetcher(&FetcherConfig{RateLimit: rateLimit, Burst: burst, Timeout: time.Second})
			if err != nil {
				return false
			}
			defer fetcher.Close()

			limiter := fetcher.GetLimiter()
			return float64(limiter.Limit()) == rateLimit && limiter.Burst() == burst
		},
		rateLimitGen,
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t)
}

func newTestFetcher(t *testing.T, cfg *FetcherConfig) *HTTPFetcher {
	t.Helper()
	if cfg == nil {
		cfg = &FetcherConfig{RateLimit: 1000, Burst: 100, Timeout: 2 * time.Second}
	}
	f, err := NewHTTPFetcher(cfg)
	if err != nil {
		t.Fatalf("NewHTTPFetcher() error = %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestHTTPFetcher_Fetch(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			gotUA = r.Header.Get("User-Agent")
			fmt.Fprint(w, "<html>talk</html>")
		case "/empty":
			fmt.Fprint(w, "  \n")
		case "/gone":
			http.Error(w, "gone", http.StatusGone)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := newTestFetcher(t, &FetcherConfig{RateLimit: 1000, Burst: 100, Timeout: 2 * time.Second, UserAgent: "tedshelf-test"})
	ctx := context.Background()

	body, err := f.Fetch(ctx, srv.URL+"/ok")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if body != "<html>talk</html>" {
		t.Errorf("Fetch() = %q", body)
	}
	if gotUA != "tedshelf-test" {
		t.Errorf("User-Agent = %q", gotUA)
	}

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"empty body", "/empty", 0},
		{"gone", "/gone", http.StatusGone},
		{"not found", "/missing", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Fetch(ctx, srv.URL+tt.path)
			var fe *FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("Fetch() error = %v, want *FetchError", err)
			}
			if fe.Status != tt.status {
				t.Errorf("FetchError.Status = %d, want %d", fe.Status, tt.status)
			}
			if !strings.Contains(fe.Error(), tt.path) {
				t.Errorf("FetchError message %q does not name the URL", fe.Error())
			}
		})
	}
}

func TestHTTPFetcher_FetchHonoursContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	f := newTestFetcher(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := f.Fetch(ctx, srv.URL)
	if err == nil {
		t.Fatal("Fetch() succeeded past its deadline")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Fetch() error = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Fetch() returned after %v", elapsed)
	}
}

func TestHTTPFetcher_DoesNotRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := newTestFetcher(t, nil)
	if _, err := f.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("Fetch() error = nil, want failure")
	}
	if calls != 1 {
		t.Errorf("server saw %d requests, want 1", calls)
	}
}

type fakeRenderer struct {
	html   string
	err    error
	calls  int
	closed bool
}

func (r *fakeRenderer) FetchRenderedHTML(ctx context.Context, url string, waitSelector string) (string, error) {
	r.calls++
	return r.html, r.err
}

func (r *fakeRenderer) Close() error {
	r.closed = true
	return nil
}

func TestHTTPFetcher_BrowserFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer srv.Close()

	t.Run("disabled", func(t *testing.T) {
		f := newTestFetcher(t, nil)
		r := &fakeRenderer{html: "<html>rendered</html>"}
		f.newBrowser = func(*FetcherConfig) (renderer, error) { return r, nil }

		if _, err := f.Fetch(context.Background(), srv.URL); err == nil {
			t.Fatal("Fetch() error = nil without fallback")
		}
		if r.calls != 0 {
			t.Errorf("renderer called %d times with fallback disabled", r.calls)
		}
	})

	t.Run("enabled", func(t *testing.T) {
		f := newTestFetcher(t, &FetcherConfig{RateLimit: 1000, Burst: 100, Timeout: time.Second, BrowserFallback: true})
		r := &fakeRenderer{html: "<html>rendered</html>"}
		f.newBrowser = func(*FetcherConfig) (renderer, error) { return r, nil }

		body, err := f.Fetch(context.Background(), srv.URL)
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if body != "<html>rendered</html>" {
			t.Errorf("Fetch() = %q", body)
		}

		// The browser is reused
		_, _ = f.Fetch(context.Background(), srv.URL)
		if r.calls != 2 {
			t.Errorf("renderer calls = %d, want 2", r.calls)
		}
		if err := f.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if !r.closed {
			t.Error("Close() did not close the browser")
		}
	})

	t.Run("browser fails", func(t *testing.T) {
		f := newTestFetcher(t, &FetcherConfig{RateLimit: 1000, Burst: 100, Timeout: time.Second, BrowserFallback: true})
		f.newBrowser = func(*FetcherConfig) (renderer, error) {
			return &fakeRenderer{err: errors.New("no chrome")}, nil
		}

		_, err := f.Fetch(context.Background(), srv.URL)
		var fe *FetchError
		if !errors.As(err, &fe) || fe.Status != http.StatusForbidden {
			t.Errorf("Fetch() error = %v, want the original HTTP failure", err)
		}
	})
}
