package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestIntervalTaskRunsRepeatedly(t *testing.T) {
	var runs atomic.Int64
	s := New()
	s.AddTask(&Task{
		Name:     "flush",
		Type:     TaskFlush,
		Schedule: Schedule{Kind: ScheduleInterval, Interval: 10 * time.Millisecond},
		Enabled:  true,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})
	s.Start(context.Background())
	time.Sleep(55 * time.Millisecond)
	s.Stop()

	if runs.Load() < 2 {
		t.Fatalf("expected at least 2 runs, got %d", runs.Load())
	}
}

func TestDependsOnSkipsWhenDependencyFailed(t *testing.T) {
	var depRan, childRan atomic.Int64
	s := New()
	s.AddTask(&Task{
		Name:     "rotate",
		Schedule: Schedule{Kind: ScheduleOnce, Delay: time.Millisecond},
		Enabled:  true,
		Run: func(ctx context.Context) error {
			depRan.Add(1)
			return errBoom{}
		},
	})
	s.AddTask(&Task{
		Name:      "compress",
		Schedule:  Schedule{Kind: ScheduleOnce, Delay: 20 * time.Millisecond},
		DependsOn: "rotate",
		Enabled:   true,
		Run: func(ctx context.Context) error {
			childRan.Add(1)
			return nil
		},
	})
	s.Start(context.Background())
	time.Sleep(60 * time.Millisecond)
	s.Stop()

	if depRan.Load() == 0 {
		t.Fatal("expected dependency task to have run")
	}
	if childRan.Load() != 0 {
		t.Fatal("expected dependent task to be skipped after dependency failure")
	}
}

func TestRetryWithBackoffExhausts(t *testing.T) {
	var attempts atomic.Int64
	s := New()
	task := &Task{
		Name:     "flaky",
		Schedule: Schedule{Kind: ScheduleOnce, Delay: time.Millisecond},
		Retry:    RetryPolicy{MaxRetries: 2, Interval: 5 * time.Millisecond, BackoffMultiplier: 2},
		Enabled:  true,
		Run: func(ctx context.Context) error {
			attempts.Add(1)
			return errBoom{}
		},
	}
	s.AddTask(task)
	s.Start(context.Background())
	time.Sleep(100 * time.Millisecond)
	s.Stop()

	if attempts.Load() != 3 {
		t.Fatalf("expected 1 initial attempt + 2 retries = 3, got %d", attempts.Load())
	}
	if task.ErrorCount() != 3 {
		t.Fatalf("expected error_count=3, got %d", task.ErrorCount())
	}
}

// TestAddTaskAfterStartSpawnsImmediately covers the Logger's use case:
// registering a housekeeping task (e.g. per-sink rotation) after the
// Scheduler is already running must not wait for a subsequent Start.
func TestAddTaskAfterStartSpawnsImmediately(t *testing.T) {
	var runs atomic.Int64
	s := New()
	s.Start(context.Background())
	defer s.Stop()

	s.AddTask(&Task{
		Name:     "late",
		Schedule: Schedule{Kind: ScheduleInterval, Interval: 10 * time.Millisecond},
		Enabled:  true,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	time.Sleep(55 * time.Millisecond)
	if runs.Load() < 2 {
		t.Fatalf("expected a task added after Start to run on its own, got %d runs", runs.Load())
	}
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }
