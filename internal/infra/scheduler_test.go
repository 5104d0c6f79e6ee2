package infra

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"marketwatch/internal/service"
)

type scriptedSweeper struct {
	calls    atomic.Int32
	outcomes []service.SweepOutcome
}

func (s *scriptedSweeper) Sweep(ctx context.Context) (*service.SweepReport, error) {
	n := int(s.calls.Add(1)) - 1
	outcome := service.SweepSuccess
	if n < len(s.outcomes) {
		outcome = s.outcomes[n]
	}
	return &service.SweepReport{Outcome: outcome}, nil
}

func waitForCalls(t *testing.T, s *scriptedSweeper, want int32) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.calls.Load() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("sweeps = %d, want %d", s.calls.Load(), want)
}

func TestScheduler_InitialRunAndRetry(t *testing.T) {
	sweeper := &scriptedSweeper{outcomes: []service.SweepOutcome{service.SweepRetry, service.SweepSuccess}}
	sched := NewScheduler(sweeper, SchedulerConfig{
		Schedule:     "@every 1h",
		InitialDelay: 10 * time.Millisecond,
		RetryDelay:   10 * time.Millisecond,
	}, zap.NewNop())

	if err := sched.Start(); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	waitForCalls(t, sweeper, 2)

	// success ends the retry chain
	time.Sleep(50 * time.Millisecond)
	if got := sweeper.calls.Load(); got != 2 {
		t.Errorf("sweeps = %d, want 2", got)
	}
}

func TestScheduler_StopCancelsPendingRuns(t *testing.T) {
	sweeper := &scriptedSweeper{}
	sched := NewScheduler(sweeper, SchedulerConfig{
		Schedule:     "@every 1h",
		InitialDelay: time.Hour,
	}, zap.NewNop())

	if err := sched.Start(); err != nil {
		t.Fatal(err)
	}
	sched.Stop()

	sched.after(time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	if got := sweeper.calls.Load(); got != 0 {
		t.Errorf("sweeps = %d, want 0", got)
	}
}

type blockingSweeper struct {
	started chan struct{}
	release chan struct{}
	done    atomic.Bool
}

func (s *blockingSweeper) Sweep(ctx context.Context) (*service.SweepReport, error) {
	close(s.started)
	<-s.release
	s.done.Store(true)
	return &service.SweepReport{Outcome: service.SweepSuccess}, nil
}

func TestScheduler_StopWaitsForDelayedRun(t *testing.T) {
	sweeper := &blockingSweeper{started: make(chan struct{}), release: make(chan struct{})}
	sched := NewScheduler(sweeper, SchedulerConfig{
		Schedule:     "@every 1h",
		InitialDelay: time.Millisecond,
		RetryDelay:   time.Hour,
	}, zap.NewNop())

	if err := sched.Start(); err != nil {
		t.Fatal(err)
	}

	select {
	case <-sweeper.started:
	case <-time.After(2 * time.Second):
		t.Fatal("initial sweep never started")
	}

	stopped := make(chan struct{})
	go func() {
		sched.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a sweep was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(sweeper.release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the sweep finished")
	}
	if !sweeper.done.Load() {
		t.Error("sweep did not complete")
	}
}

func TestScheduler_BadSchedule(t *testing.T) {
	sched := NewScheduler(&scriptedSweeper{}, SchedulerConfig{Schedule: "every now and then"}, zap.NewNop())
	if err := sched.Start(); err == nil {
		t.Error("expected error for invalid schedule")
	}
}
