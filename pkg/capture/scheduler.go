package capture

import (
	"sync"
	"time"
)

// Scheduler drives the engine's analysis loop. The real implementation
// ticks on a timer; tests tick manually so detection timing is
// deterministic.
type Scheduler interface {
	// Start begins invoking step periodically. Calling Start while
	// running replaces the step function.
	Start(step func())

	// Stop halts the loop. Safe to call when not running, and safe to
	// call from inside a step; a step already in flight may complete
	// after Stop returns.
	Stop()
}

// TickerScheduler drives the analysis loop from a time.Ticker.
type TickerScheduler struct {
	interval time.Duration

	mu     sync.Mutex
	stopCh chan struct{}
}

// NewTickerScheduler creates a scheduler that ticks every interval.
func NewTickerScheduler(interval time.Duration) *TickerScheduler {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &TickerScheduler{interval: interval}
}

// Start begins the tick loop. A running loop is stopped first.
func (s *TickerScheduler) Start(step func()) {
	s.Stop()

	s.mu.Lock()
	stopCh := make(chan struct{})
	s.stopCh = stopCh
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				step()
			}
		}
	}()
}

// Stop halts the tick loop.
func (s *TickerScheduler) Stop() {
	s.mu.Lock()
	stopCh := s.stopCh
	s.stopCh = nil
	s.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}
}

var _ Scheduler = (*TickerScheduler)(nil)

// ManualScheduler is a test scheduler that only ticks when told to.
type ManualScheduler struct {
	mu      sync.Mutex
	step    func()
	running bool
}

// NewManualScheduler creates a manually ticked scheduler.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// Start records the step function.
func (s *ManualScheduler) Start(step func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step = step
	s.running = true
}

// Stop forgets the step function.
func (s *ManualScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
}

// Tick invokes the step function once, synchronously. No-op when
// stopped.
func (s *ManualScheduler) Tick() {
	s.mu.Lock()
	step := s.step
	running := s.running
	s.mu.Unlock()

	if running && step != nil {
		step()
	}
}

// Running reports whether the loop is active.
func (s *ManualScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

var _ Scheduler = (*ManualScheduler)(nil)
