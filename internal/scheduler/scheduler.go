// Package scheduler runs the background dispatch loop that promotes
// scheduled requirements once their trigger time passes.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"
)

const (
	// DefaultInterval is the base poll interval between dispatch sweeps.
	DefaultInterval = 60 * time.Second
	// DefaultMaxInterval caps the backoff after consecutive failed sweeps.
	DefaultMaxInterval = 300 * time.Second
)

// DispatchFunc performs one sweep and reports how many requirements it
// promoted.
type DispatchFunc func(ctx context.Context) (int, error)

// Scheduler polls at Interval, doubling the delay after each failed sweep up
// to MaxInterval, and resetting to Interval after a success. The loop wakes
// at one-second granularity so Stop takes effect promptly.
type Scheduler struct {
	Dispatch    DispatchFunc
	Interval    time.Duration
	MaxInterval time.Duration
	Logger      *log.Logger
	// Notify, if set, is called after every sweep that promoted at least
	// one requirement. Best effort; failures in the observer are its own
	// problem.
	Notify func(count int)

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
}

func (s *Scheduler) logger() *log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.Default()
}

func (s *Scheduler) interval() time.Duration {
	if s.Interval > 0 {
		return s.Interval
	}
	return DefaultInterval
}

func (s *Scheduler) maxInterval() time.Duration {
	if s.MaxInterval > 0 {
		return s.MaxInterval
	}
	return DefaultMaxInterval
}

// Start launches the poll loop. Starting an already running scheduler is a
// no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(ctx, s.stop, s.done)
}

// Stop signals the loop to exit and waits for the in-flight sweep to finish.
// Safe to call multiple times.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()
	<-done
}

func (s *Scheduler) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	delay := s.interval()
	for {
		count, err := s.Dispatch(ctx)
		if err != nil {
			delay = min(delay*2, s.maxInterval())
			s.logger().Printf("dispatch sweep failed, retrying in %s: %v", delay, err)
		} else {
			if count > 0 {
				s.logger().Printf("dispatched %d scheduled requirement(s)", count)
				if s.Notify != nil {
					s.Notify(count)
				}
			}
			delay = s.interval()
		}
		if !s.sleep(ctx, stop, delay) {
			return
		}
	}
}

// sleep waits for d, waking every second to check for shutdown. Returns false
// when the scheduler should exit.
func (s *Scheduler) sleep(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		tick := time.Second
		if remaining < tick {
			tick = remaining
		}
		select {
		case <-stop:
			return false
		case <-ctx.Done():
			return false
		case <-time.After(tick):
		}
	}
}
