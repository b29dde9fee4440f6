package scheduler_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"reqmgr/internal/scheduler"
)

func discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestNotifyOnPromotion(t *testing.T) {
	var notified atomic.Int64
	var calls atomic.Int64
	s := &scheduler.Scheduler{
		Dispatch: func(ctx context.Context) (int, error) {
			if calls.Add(1) == 1 {
				return 3, nil
			}
			return 0, nil
		},
		Interval: 10 * time.Millisecond,
		Logger:   discard(),
		Notify:   func(count int) { notified.Store(int64(count)) },
	}
	s.Start(context.Background())
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for notified.Load() != 3 {
		if time.Now().After(deadline) {
			t.Fatalf("notify not called, got %d", notified.Load())
		}
		time.Sleep(time.Millisecond)
	}
	// empty sweeps do not notify
	for calls.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("loop stalled after %d sweeps", calls.Load())
		}
		time.Sleep(time.Millisecond)
	}
	if notified.Load() != 3 {
		t.Fatalf("notify fired on an empty sweep")
	}
}

func TestSurvivesDispatchFailure(t *testing.T) {
	var calls atomic.Int64
	s := &scheduler.Scheduler{
		Dispatch: func(ctx context.Context) (int, error) {
			if calls.Add(1) < 3 {
				return 0, errors.New("database is locked")
			}
			return 0, nil
		},
		Interval:    5 * time.Millisecond,
		MaxInterval: 20 * time.Millisecond,
		Logger:      discard(),
	}
	s.Start(context.Background())
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 4 {
		if time.Now().After(deadline) {
			t.Fatalf("loop did not recover, %d sweeps", calls.Load())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestBackoffLogsDoubledDelay(t *testing.T) {
	var buf bytes.Buffer
	var calls atomic.Int64
	s := &scheduler.Scheduler{
		Dispatch: func(ctx context.Context) (int, error) {
			calls.Add(1)
			return 0, errors.New("database is locked")
		},
		Interval:    10 * time.Millisecond,
		MaxInterval: 40 * time.Millisecond,
		Logger:      log.New(&buf, "", 0),
	}
	s.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("only %d sweeps before deadline", calls.Load())
		}
		time.Sleep(time.Millisecond)
	}
	s.Stop()

	// the logged delay is the one the loop will actually wait
	out := buf.String()
	if !strings.Contains(out, "retrying in 20ms") {
		t.Fatalf("first retry delay not doubled in log:\n%s", out)
	}
	if !strings.Contains(out, "retrying in 40ms") {
		t.Fatalf("retry delay not capped at max in log:\n%s", out)
	}
	if strings.Contains(out, "retrying in 10ms") {
		t.Fatalf("log shows the pre-backoff delay:\n%s", out)
	}
}

func TestStopInterruptsSleep(t *testing.T) {
	s := &scheduler.Scheduler{
		Dispatch: func(ctx context.Context) (int, error) { return 0, nil },
		Interval: time.Hour,
		Logger:   discard(),
	}
	s.Start(context.Background())

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("stop did not interrupt the sleep")
	}
	// repeated stop is a no-op
	s.Stop()
}

func TestContextCancelStopsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int64
	s := &scheduler.Scheduler{
		Dispatch: func(ctx context.Context) (int, error) {
			calls.Add(1)
			return 0, nil
		},
		Interval: time.Hour,
		Logger:   discard(),
	}
	s.Start(ctx)
	cancel()

	// with the context gone, Stop has nothing to wait for
	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("loop still running after cancel")
	}
	if calls.Load() == 0 {
		t.Fatalf("dispatch never ran")
	}
}
