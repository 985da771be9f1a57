// Package cache remembers which talk a submitted URL resolved to, so repeat
// submissions can skip the identifying fetch.
package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// keyPrefix namespaces cache keys in a shared Redis
const keyPrefix = "tedshelf:talkid:"

// TalkIDCache maps talk page URLs to talk ids
type TalkIDCache interface {
	Get(ctx context.Context, pageURL string) (talkID string, ok bool)
	Set(ctx context.Context, pageURL string, talkID string)
}

// NormalizeURL reduces a talk page URL to the parts that identify the talk:
// lowercase host without "www.", path without trailing slash, no query or
// fragment. Unparsable input is returned trimmed.
func NormalizeURL(pageURL string) string {
	pageURL = strings.TrimSpace(pageURL)
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return pageURL
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	path := strings.TrimRight(u.Path, "/")
	return host + path
}

// Key builds the cache key of a talk page URL
func Key(pageURL string) string {
	hash := sha256.Sum256([]byte(NormalizeURL(pageURL)))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:12])
}

// DefaultMaxEntries bounds a MemoryCache created without a limit
const DefaultMaxEntries = 10000

type memoryEntry struct {
	talkID    string
	storedAt  time.Time
	expiresAt time.Time
}

// MemoryCache is an in-process TalkIDCache used when Redis is not configured.
// It holds at most maxEntries; expired entries go first, then the oldest.
type MemoryCache struct {
	entries    sync.Map // key -> memoryEntry
	count      atomic.Int64
	evictMu    sync.Mutex
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// NewMemoryCache creates an in-memory cache; ttl <= 0 keeps entries until
// they are evicted for space
func NewMemoryCache(ttl time.Duration, maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryCache{ttl: ttl, maxEntries: maxEntries, now: time.Now}
}

// Len returns the number of entries held
func (c *MemoryCache) Len() int {
	return int(c.count.Load())
}

// Get returns the cached talk id of a URL
func (c *MemoryCache) Get(_ context.Context, pageURL string) (string, bool) {
	key := Key(pageURL)
	val, ok := c.entries.Load(key)
	if !ok {
		return "", false
	}
	entry := val.(memoryEntry)
	if c.expired(entry, c.now()) {
		c.delete(key)
		return "", false
	}
	return entry.talkID, true
}

// Set caches the talk id of a URL
func (c *MemoryCache) Set(_ context.Context, pageURL string, talkID string) {
	now := c.now()
	entry := memoryEntry{talkID: talkID, storedAt: now}
	if c.ttl > 0 {
		entry.expiresAt = now.Add(c.ttl)
	}
	if _, loaded := c.entries.Swap(Key(pageURL), entry); !loaded {
		c.count.Add(1)
	}
	c.evictIfNeeded()
}

// Sweep removes expired entries and reports how many were dropped
func (c *MemoryCache) Sweep() int {
	now := c.now()
	removed := 0
	c.entries.Range(func(key, val any) bool {
		if c.expired(val.(memoryEntry), now) && c.delete(key) {
			removed++
		}
		return true
	})
	return removed
}

// StartSweeper sweeps every interval until ctx is done
func (c *MemoryCache) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 || c.ttl <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := c.Sweep(); n > 0 {
					log.Debug().Int("removed", n).Int("remaining", c.Len()).Msg("Swept talk id cache")
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// evictIfNeeded brings the cache back under maxEntries
func (c *MemoryCache) evictIfNeeded() {
	if c.Len() <= c.maxEntries {
		return
	}
	c.evictMu.Lock()
	defer c.evictMu.Unlock()

	if c.Len() <= c.maxEntries {
		return
	}
	c.Sweep()

	for c.Len() > c.maxEntries {
		var oldestKey any
		var oldestAt time.Time
		c.entries.Range(func(key, val any) bool {
			entry := val.(memoryEntry)
			if oldestKey == nil || entry.storedAt.Before(oldestAt) {
				oldestKey, oldestAt = key, entry.storedAt
			}
			return true
		})
		if oldestKey == nil {
			return
		}
		c.delete(oldestKey)
	}
}

func (c *MemoryCache) expired(entry memoryEntry, now time.Time) bool {
	return !entry.expiresAt.IsZero() && now.After(entry.expiresAt)
}

func (c *MemoryCache) delete(key any) bool {
	if _, loaded := c.entries.LoadAndDelete(key); loaded {
		c.count.Add(-1)
		return true
	}
	return false
}
