package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	stateIdle int32 = iota
	stateRunning
)

// Pass is one full processing pass: select due reminders and dispatch
// them. Any returned error is logged; it never crashes the scheduler.
type Pass func(ctx context.Context) error

// Scheduler drives periodic passes and guarantees at most one pass in
// flight regardless of how long a pass takes or how often the tick
// source fires. The "am I running" check and the "mark running"
// transition are a single compare-and-swap, so a tick firing before the
// previous pass's completion is visible performs no work.
type Scheduler struct {
	interval time.Duration
	grace    time.Duration
	pass     Pass
	logger   *zap.Logger

	state   atomic.Int32
	skipped atomic.Int64
	started atomic.Bool
	passes  sync.WaitGroup

	wake     chan struct{}
	quit     chan struct{}
	loopDone chan struct{}
	stopOnce sync.Once
}

func NewScheduler(pass Pass, interval, grace time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		interval: interval,
		grace:    grace,
		pass:     pass,
		logger:   logger,
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
}

// Start runs the tick loop until ctx is canceled or Stop is called.
// The first pass fires immediately.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))

	go func() {
		defer close(s.loopDone)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.Tick(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.quit:
				return
			case <-ticker.C:
				s.Tick(ctx)
			case <-s.wake:
				s.Tick(ctx)
			}
		}
	}()
}

// Tick attempts to launch a pass and returns immediately. If a pass is
// already running the tick is skipped entirely and only counted. The
// tick source never blocks on pass completion.
func (s *Scheduler) Tick(ctx context.Context) bool {
	if !s.state.CompareAndSwap(stateIdle, stateRunning) {
		s.skipped.Add(1)
		s.logger.Debug("tick skipped, pass still running",
			zap.Int64("skipped_total", s.skipped.Load()))
		return false
	}

	s.passes.Add(1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("pass aborted",
					zap.Error(Fatal(fmt.Errorf("pass panic: %v", r))))
			}
			s.state.Store(stateIdle)
			s.passes.Done()
		}()

		if err := s.pass(ctx); err != nil {
			s.logger.Error("pass failed", zap.Error(err))
		}
	}()
	return true
}

// Wake nudges an immediate pass. Non-blocking; coalesces with a pending
// wake and is still subject to the single-flight guard.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Stop disables further ticks immediately, then waits up to the grace
// period for an in-flight pass to finish. Shutdown is bounded: if the
// grace period elapses the pass is abandoned with a warning.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
		if s.started.Load() {
			<-s.loopDone
		}

		done := make(chan struct{})
		go func() {
			s.passes.Wait()
			close(done)
		}()

		select {
		case <-done:
			s.logger.Info("scheduler stopped")
		case <-time.After(s.grace):
			s.logger.Warn("scheduler stopped with a pass still in flight",
				zap.Duration("grace", s.grace))
		}
	})
}

// SkippedTicks returns how many ticks were skipped because a pass was
// already running.
func (s *Scheduler) SkippedTicks() int64 {
	return s.skipped.Load()
}

// Running reports whether a pass is currently in flight.
func (s *Scheduler) Running() bool {
	return s.state.Load() == stateRunning
}
