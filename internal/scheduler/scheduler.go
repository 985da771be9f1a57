// Package scheduler periodically refreshes the catalog gauges.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultInitialDelay is the wait before the first refresh
const DefaultInitialDelay = 5 * time.Second

// Counter reports the shared catalog counts
type Counter interface {
	CountTalks(ctx context.Context) (int64, error)
	CountAllEntries(ctx context.Context) (int64, error)
}

// Sink receives fresh counts
type Sink func(talks, entries int64)

// Scheduler manages the periodic stats refresh
type Scheduler struct {
	counter      Counter
	sink         Sink
	interval     time.Duration
	initialDelay time.Duration
	running      atomic.Bool
	mu           sync.Mutex // one refresh at a time
	stopCh       chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
}

// NewScheduler creates a scheduler refreshing every interval. A non-positive
// interval disables the periodic loop; TryRun still works.
func NewScheduler(counter Counter, sink Sink, interval time.Duration) *Scheduler {
	return &Scheduler{
		counter:      counter,
		sink:         sink,
		interval:     interval,
		initialDelay: DefaultInitialDelay,
		stopCh:       make(chan struct{}),
	}
}

// SetInitialDelay overrides the wait before the first refresh
func (s *Scheduler) SetInitialDelay(d time.Duration) {
	s.initialDelay = d
}

// Start begins the scheduler with initial delay and periodic execution
func (s *Scheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		log.Info().Msg("Stats scheduler is disabled")
		return
	}

	s.wg.Add(1)
	go s.run(ctx)
}

// run is the main scheduler loop
func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	log.Info().Dur("delay", s.initialDelay).Msg("Stats scheduler starting with initial delay")

	select {
	case <-time.After(s.initialDelay):
		s.execute(ctx)
	case <-s.stopCh:
		log.Info().Msg("Stats scheduler stopped during initial delay")
		return
	case <-ctx.Done():
		log.Info().Msg("Stats scheduler context cancelled during initial delay")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Msg("Stats scheduler started periodic execution")

	for {
		select {
		case <-ticker.C:
			s.execute(ctx)
		case <-s.stopCh:
			log.Info().Msg("Stats scheduler stopped")
			return
		case <-ctx.Done():
			log.Info().Msg("Stats scheduler context cancelled")
			return
		}
	}
}

// execute runs a single refresh unless one is already in flight
func (s *Scheduler) execute(ctx context.Context) {
	if !s.TryRun(ctx) {
		log.Warn().Msg("Stats refresh already running, skipping this trigger")
	}
}

// RunOnce reads the counts and hands them to the sink
func (s *Scheduler) RunOnce(ctx context.Context) error {
	talks, err := s.counter.CountTalks(ctx)
	if err != nil {
		return fmt.Errorf("failed to count talks: %w", err)
	}
	entries, err := s.counter.CountAllEntries(ctx)
	if err != nil {
		return fmt.Errorf("failed to count catalog entries: %w", err)
	}

	if s.sink != nil {
		s.sink(talks, entries)
	}
	log.Debug().Int64("talks", talks).Int64("entries", entries).Msg("Catalog stats refreshed")
	return nil
}

// TryRun refreshes immediately. Returns false if a refresh is already running
func (s *Scheduler) TryRun(ctx context.Context) bool {
	if !s.mu.TryLock() {
		return false
	}
	defer s.mu.Unlock()

	s.running.Store(true)
	defer s.running.Store(false)

	startTime := time.Now()
	if err := s.RunOnce(ctx); err != nil {
		log.Error().Err(err).Msg("Stats refresh failed")
	}
	log.Debug().Dur("duration", time.Since(startTime)).Msg("Stats refresh completed")

	return true
}

// IsRunning returns true if a refresh is currently running
func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		log.Info().Msg("Stopping stats scheduler...")
		close(s.stopCh)
	})
	s.wg.Wait()
}
