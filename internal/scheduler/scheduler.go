package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Scheduler runs a task at a fixed interval in a background goroutine
type Scheduler struct {
	interval time.Duration
	task     func()
	clock    clock.Clock
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

// New creates a scheduler backed by the wall clock
func New(interval time.Duration, task func()) *Scheduler {
	return NewWithClock(interval, task, clock.New())
}

// NewWithClock creates a scheduler driven by the given clock
func NewWithClock(interval time.Duration, task func(), clk clock.Clock) *Scheduler {
	return &Scheduler{
		interval: interval,
		task:     task,
		clock:    clk,
	}
}

// Start begins executing the task. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || s.interval <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true

	ticker := s.clock.Ticker(s.interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.task()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop terminates the background loop and waits for it to exit
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.cancel()
	s.wg.Wait()
	s.running = false
}

// IsRunning returns true if the task loop is active
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
