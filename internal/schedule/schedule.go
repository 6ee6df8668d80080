// Package schedule implements C10: the periodic-housekeeping task
// scheduler (rotation checks, retention sweeps, compression, flush,
// health checks), per spec.md §4.10.
package schedule

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// TaskType classifies what a Task does, for logging/metrics purposes.
type TaskType int

const (
	TaskCleanup TaskType = iota
	TaskRotation
	TaskCompression
	TaskFlush
	TaskHealthCheck
	TaskCustom
)

// ScheduleKind identifies how a Task's next run time is computed.
type ScheduleKind int

const (
	ScheduleOnce ScheduleKind = iota
	ScheduleInterval
	ScheduleDaily
	ScheduleWeekly
	ScheduleCron
)

// Schedule configures when a Task runs (spec §4.10).
type Schedule struct {
	Kind ScheduleKind

	Delay    time.Duration // ScheduleOnce
	Interval time.Duration // ScheduleInterval

	Hour, Minute int          // ScheduleDaily / ScheduleWeekly
	Weekday      time.Weekday // ScheduleWeekly

	CronFields string // ScheduleCron: "min hour dom month dow", minimal matcher (see timing.go)
}

// RetryPolicy controls exponential-backoff retry on failure.
type RetryPolicy struct {
	MaxRetries        int
	Interval          time.Duration
	BackoffMultiplier float64
}

// Task is one scheduled housekeeping job (spec §4.10).
type Task struct {
	Name      string
	Type      TaskType
	Schedule  Schedule
	Priority  int
	Retry     RetryPolicy
	DependsOn string // optional task name; "" disables the check
	Enabled   bool
	Run       func(ctx context.Context) error

	mu         sync.Mutex
	lastRunNS  int64
	nextRunNS  int64
	runCount   int64
	errorCount int64
	lastOK     bool
}

// LastRunNS, NextRunNS, RunCount, ErrorCount, LastSucceeded expose the
// task's own bookkeeping fields (spec §4.10).
func (t *Task) LastRunNS() int64   { t.mu.Lock(); defer t.mu.Unlock(); return t.lastRunNS }
func (t *Task) NextRunNS() int64   { t.mu.Lock(); defer t.mu.Unlock(); return t.nextRunNS }
func (t *Task) RunCount() int64    { t.mu.Lock(); defer t.mu.Unlock(); return t.runCount }
func (t *Task) ErrorCount() int64  { t.mu.Lock(); defer t.mu.Unlock(); return t.errorCount }
func (t *Task) LastSucceeded() bool { t.mu.Lock(); defer t.mu.Unlock(); return t.lastOK }

// Scheduler owns a list of tasks and runs each on its own timer,
// serialized per task with different tasks running in parallel (spec
// §4.10). It uses golang.org/x/sync/errgroup to coordinate the
// per-task goroutines and their shutdown, grounded on the teacher's
// worker fan-out in cmd/etl/main.go's runPipeline.
type Scheduler struct {
	mu    sync.Mutex
	tasks map[string]*Task

	group    *errgroup.Group
	groupCtx context.Context
	cancel   context.CancelFunc
}

// New builds an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{tasks: make(map[string]*Task)}
}

// AddTask registers t. Re-adding the same name replaces the prior task
// (the prior goroutine, if the scheduler is already running, stops the
// next time it wakes and finds itself no longer the registered task).
// If the Scheduler is already running (Start has been called), t's loop
// goroutine is spawned immediately rather than waiting for the next
// Start — this lets callers like the Logger register per-sink
// housekeeping tasks as sinks are added, after the Scheduler's own
// lifecycle has already started.
func (s *Scheduler) AddTask(t *Task) {
	s.mu.Lock()
	t.nextRunNS = computeInitialNextRun(t.Schedule)
	s.tasks[t.Name] = t
	group, ctx := s.group, s.groupCtx
	s.mu.Unlock()

	if group != nil && t.Enabled {
		group.Go(func() error {
			s.runTaskLoop(ctx, t)
			return nil
		})
	}
}

// Task returns the registered task by name, or nil.
func (s *Scheduler) Task(name string) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[name]
}

// Start launches one goroutine per enabled task under an errgroup tied
// to ctx; Stop (or ctx cancellation) ends every task's loop.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	g, gctx := errgroup.WithContext(ctx)

	s.mu.Lock()
	s.group = g
	s.groupCtx = gctx
	tasks := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	for _, t := range tasks {
		t := t
		if !t.Enabled {
			continue
		}
		g.Go(func() error {
			s.runTaskLoop(gctx, t)
			return nil
		})
	}
}

// Stop cancels every task's loop and waits for them to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.group != nil {
		s.group.Wait()
	}
}

func (s *Scheduler) runTaskLoop(ctx context.Context, t *Task) {
	for {
		wait := time.Until(time.Unix(0, t.nextRunNS))
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		// A task replaced by a later AddTask under the same name stops here.
		if s.Task(t.Name) != t {
			return
		}

		if s.dependencySatisfied(t) {
			s.executeWithRetry(ctx, t)
		}

		t.mu.Lock()
		t.nextRunNS = nextRunAfter(t.Schedule, time.Now())
		t.mu.Unlock()

		if t.Schedule.Kind == ScheduleOnce {
			return
		}
	}
}

// dependencySatisfied implements spec §4.10's depends_on constraint:
// task X runs only if its dependency's most recent run succeeded
// (strict happens-before on the most recent run only; not transitive —
// SPEC_FULL.md §6 Open Question decision).
func (s *Scheduler) dependencySatisfied(t *Task) bool {
	if t.DependsOn == "" {
		return true
	}
	dep := s.Task(t.DependsOn)
	if dep == nil {
		return false
	}
	return dep.LastSucceeded()
}

func (s *Scheduler) executeWithRetry(ctx context.Context, t *Task) {
	attempt := 0
	backoff := t.Retry.Interval
	for {
		err := t.Run(ctx)
		t.mu.Lock()
		t.lastRunNS = time.Now().UnixNano()
		t.runCount++
		t.lastOK = err == nil
		if err != nil {
			t.errorCount++
		}
		t.mu.Unlock()

		if err == nil {
			return
		}
		attempt++
		if attempt > t.Retry.MaxRetries {
			return
		}
		if backoff <= 0 {
			backoff = time.Second
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if t.Retry.BackoffMultiplier > 1 {
			backoff = time.Duration(float64(backoff) * t.Retry.BackoffMultiplier)
		}
	}
}
