package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPurger struct {
	calls atomic.Int32
	err   error
}

func (p *countingPurger) Purge(context.Context) error {
	p.calls.Add(1)
	return p.err
}

func TestPurgeScheduler_ImmediateTick(t *testing.T) {
	p := &countingPurger{}
	s := NewPurgeScheduler(p, time.Hour)
	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, func() bool { return p.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestPurgeScheduler_Interval(t *testing.T) {
	p := &countingPurger{err: errors.New("backend down")}
	s := NewPurgeScheduler(p, 10*time.Millisecond)
	s.Start(context.Background())
	defer s.Stop()

	// Failures do not stop the schedule.
	require.Eventually(t, func() bool { return p.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestPurgeScheduler_Stop(t *testing.T) {
	t.Run("Before start", func(t *testing.T) {
		s := NewPurgeScheduler(&countingPurger{}, time.Hour)
		assert.NotPanics(t, s.Stop)
	})

	t.Run("Idempotent", func(t *testing.T) {
		p := &countingPurger{}
		s := NewPurgeScheduler(p, 10*time.Millisecond)
		s.Start(context.Background())
		s.Stop()
		s.Stop()

		calls := p.calls.Load()
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, calls, p.calls.Load(), "purge ran after Stop")
	})

	t.Run("Outlives start context", func(t *testing.T) {
		p := &countingPurger{}
		s := NewPurgeScheduler(p, 10*time.Millisecond)
		ctx, cancel := context.WithCancel(context.Background())
		s.Start(ctx)
		cancel()
		defer s.Stop()

		require.Eventually(t, func() bool { return p.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	})
}

func TestPurgeScheduler_StartTwice(t *testing.T) {
	p := &countingPurger{}
	s := NewPurgeScheduler(p, time.Hour)
	s.Start(context.Background())
	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, func() bool { return p.calls.Load() >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), p.calls.Load())
}
