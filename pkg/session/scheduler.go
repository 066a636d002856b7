package session

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-billsense/internal/timeutil"
)

// TickFunc runs one detection tick.
type TickFunc func(ctx context.Context)

// Scheduler drives ticks at a fixed cadence with at most one in flight.
// A tick that comes due while the previous one is still running is
// skipped, never queued.
type Scheduler struct {
	clock    timeutil.Clock
	warmup   time.Duration
	interval time.Duration
	tick     TickFunc
	logger   *slog.Logger

	busy    atomic.Bool
	ran     atomic.Uint64
	skipped atomic.Uint64
}

// NewScheduler creates a scheduler. It does nothing until Run.
func NewScheduler(clock timeutil.Clock, warmup, interval time.Duration, tick TickFunc, logger *slog.Logger) *Scheduler {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		clock:    clock,
		warmup:   warmup,
		interval: interval,
		tick:     tick,
		logger:   logger.With("component", "session.scheduler"),
	}
}

// Run waits out the warmup, fires one tick immediately, then one per
// interval until ctx is cancelled. Ticks run on their own goroutines.
func (s *Scheduler) Run(ctx context.Context) {
	if s.warmup > 0 {
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(s.warmup):
		}
	}

	s.dispatch(ctx)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.dispatch(ctx)
		}
	}
}

// dispatch starts a tick unless one is already running.
func (s *Scheduler) dispatch(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if !s.busy.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.logger.Debug("tick skipped, previous still in flight")
		return
	}
	s.ran.Add(1)
	go func() {
		defer s.busy.Store(false)
		s.tick(ctx)
	}()
}

// TryTick runs a tick synchronously if none is in flight and reports
// whether it ran.
func (s *Scheduler) TryTick(ctx context.Context) bool {
	if !s.busy.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		return false
	}
	defer s.busy.Store(false)
	s.ran.Add(1)
	s.tick(ctx)
	return true
}

// Busy reports whether a tick is in flight.
func (s *Scheduler) Busy() bool { return s.busy.Load() }

// Ran returns how many ticks were started.
func (s *Scheduler) Ran() uint64 { return s.ran.Load() }

// Skipped returns how many ticks were dropped because one was in flight.
func (s *Scheduler) Skipped() uint64 { return s.skipped.Load() }
