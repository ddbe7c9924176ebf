package cache

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/bartventer/persistedcache/internal/logext"
)

// Purger deletes expired entries.
type Purger interface {
	Purge(ctx context.Context) error
}

// PurgeScheduler periodically invokes a [Purger]. The first purge runs as soon
// as the scheduler starts. A failed purge is logged and the schedule goes on.
type PurgeScheduler struct {
	purger   Purger
	interval time.Duration
	log      *log.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPurgeScheduler returns a stopped scheduler. A non-positive interval
// falls back to [DefaultPurgeInterval].
func NewPurgeScheduler(purger Purger, interval time.Duration) *PurgeScheduler {
	if interval <= 0 {
		interval = DefaultPurgeInterval
	}
	return &PurgeScheduler{
		purger:   purger,
		interval: interval,
		log:      logext.Default(),
	}
}

// Start starts the schedule. The scheduler outlives ctx; only [PurgeScheduler.Stop]
// ends it. Calling Start on a running scheduler has no effect.
func (s *PurgeScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.done = make(chan struct{})
	go s.run(ctx, s.done)
}

// Stop stops the schedule and waits for a running purge to return.
// It is safe to call Stop on a scheduler that was never started or is
// already stopped.
func (s *PurgeScheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *PurgeScheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	s.tick(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *PurgeScheduler) tick(ctx context.Context) {
	if err := s.purger.Purge(ctx); err != nil && ctx.Err() == nil {
		s.log.Printf("purge failed: %v", err)
	}
}
