// Package storetest opens throwaway sqlite-backed stores for tests.
package storetest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/user/tedshelf-go/internal/config"
	"github.com/user/tedshelf-go/internal/store"
)

var seq atomic.Int64

// New returns a migrated in-memory store closed at test cleanup
func New(tb testing.TB) *store.GormStore {
	tb.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(tb.Name())
	cfg := &config.DBConfig{
		Driver: "sqlite",
		Path:   fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, seq.Add(1)),
	}

	s, err := store.Open(cfg)
	if err != nil {
		tb.Fatalf("open sqlite store: %v", err)
	}
	tb.Cleanup(func() {
		_ = s.Close()
	})
	return s
}
