package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-billsense/internal/log"
	"github.com/teslashibe/go-billsense/internal/timeutil"
)

func TestScheduler_WarmupThenInterval(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	var ticks atomic.Int32
	s := NewScheduler(clock, time.Second, 1500*time.Millisecond, func(context.Context) {
		ticks.Add(1)
	}, log.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return clock.Pending() == 1 }, time.Second, time.Millisecond)
	clock.Advance(999 * time.Millisecond)
	assert.Zero(t, ticks.Load(), "no tick during warmup")

	clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return ticks.Load() == 1 }, time.Second, time.Millisecond)

	require.Eventually(t, func() bool { return clock.Pending() == 1 }, time.Second, time.Millisecond)
	clock.Advance(1500 * time.Millisecond)
	require.Eventually(t, func() bool { return ticks.Load() == 2 }, time.Second, time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, uint64(2), s.Ran())
	assert.Zero(t, s.Skipped())
}

func TestScheduler_CancelDuringWarmup(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	var ticks atomic.Int32
	s := NewScheduler(clock, time.Second, time.Second, func(context.Context) { ticks.Add(1) }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Run(ctx)
	assert.Zero(t, ticks.Load())
}

func TestScheduler_SingleFlight(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	s := NewScheduler(timeutil.RealClock{}, 0, time.Hour, func(context.Context) {
		entered <- struct{}{}
		<-release
	}, log.Discard())

	ctx := context.Background()
	done := make(chan bool)
	go func() { done <- s.TryTick(ctx) }()
	<-entered

	assert.True(t, s.Busy())
	assert.False(t, s.TryTick(ctx), "second tick must be skipped while the first is in flight")
	s.dispatch(ctx)

	close(release)
	assert.True(t, <-done)
	assert.False(t, s.Busy())
	assert.Equal(t, uint64(1), s.Ran())
	assert.Equal(t, uint64(2), s.Skipped())
}
