package reminder

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Ticker is the entry point the scheduler drives once per minute.
type Ticker interface {
	OnTick(ctx context.Context, now time.Time) TickResult
}

// Status reports scheduler health.
type Status struct {
	Running    bool       `json:"running"`
	Busy       bool       `json:"busy"`
	LastTick   *time.Time `json:"last_tick,omitempty"`
	LastResult TickResult `json:"last_result"`
	Skipped    int64      `json:"skipped"`
}

// Scheduler fires ticks at minute boundaries. Each tick runs on its own goroutine
// so slow sends never delay the timer; a firing that arrives while the previous
// tick is still running is skipped.
type Scheduler struct {
	mu       sync.RWMutex
	engine   Ticker
	now      func() time.Time
	interval time.Duration
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
	inflight sync.WaitGroup

	busy     atomic.Bool
	skipped  atomic.Int64
	lastTick time.Time
	last     TickResult
}

// NewScheduler creates a scheduler for engine.
func NewScheduler(engine Ticker, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		engine:   engine,
		now:      time.Now,
		interval: time.Minute,
		logger:   logger,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	s.logger.Info("reminder scheduler started", "interval", s.interval)

	go func() {
		defer close(done)
		for {
			now := s.now()
			next := now.Truncate(s.interval).Add(s.interval)
			timer := time.NewTimer(next.Sub(now))

			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				s.fire(ctx, next)
			}
		}
	}()
}

// Stop stops the loop and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	s.inflight.Wait()
	s.logger.Info("reminder scheduler stopped")
}

func (s *Scheduler) fire(ctx context.Context, at time.Time) {
	if !s.busy.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.logger.Warn("previous tick still running; skipping", "minute", at.Format("15:04"))
		return
	}

	// A tick that has started runs to completion even when the scheduler is
	// stopping; each send is bounded by the engine's own timeout.
	tickCtx := context.WithoutCancel(ctx)

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer s.busy.Store(false)

		result := s.engine.OnTick(tickCtx, at)

		s.mu.Lock()
		s.lastTick = at
		s.last = result
		s.mu.Unlock()
	}()
}

// Status returns the current scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		Running:    s.cancel != nil && s.done != nil && !isClosed(s.done),
		Busy:       s.busy.Load(),
		LastResult: s.last,
		Skipped:    s.skipped.Load(),
	}
	if !s.lastTick.IsZero() {
		t := s.lastTick
		st.LastTick = &t
	}
	return st
}

func isClosed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
