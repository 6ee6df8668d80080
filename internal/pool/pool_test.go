package pool

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitRunsAllTasks(t *testing.T) {
	p := New(Config{Workers: 4, WorkStealing: true})
	var count atomic.Int64
	for i := 0; i < 200; i++ {
		p.Submit(func() { count.Add(1) }, Normal)
	}
	p.WaitAll()
	p.Shutdown()

	if count.Load() != 200 {
		t.Fatalf("expected 200 tasks run, got %d", count.Load())
	}
	if p.Stats.TasksCompleted.Load() != 200 {
		t.Fatalf("expected tasks_completed=200, got %d", p.Stats.TasksCompleted.Load())
	}
}

func TestSubmitToWorkerPinsTask(t *testing.T) {
	p := New(Config{Workers: 2, WorkStealing: false})
	done := make(chan struct{})
	p.SubmitToWorker(0, func() { close(done) }, High)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task pinned to worker 0 never ran")
	}
	p.Shutdown()
}

func TestTrySubmitDropsWhenQueueFull(t *testing.T) {
	p := New(Config{Workers: 1})
	defer p.Shutdown()

	block := make(chan struct{})
	p.Submit(func() { <-block }, Normal)
	time.Sleep(10 * time.Millisecond) // let the one worker pick it up and block

	ok := p.TrySubmit(func() {}, Normal, 0)
	if !ok {
		t.Fatal("expected unbounded queueLimit=0 to always accept")
	}

	ok = p.TrySubmit(func() {}, Normal, 1)
	if ok {
		t.Fatal("expected TrySubmit to reject once queueLimit is reached")
	}
	if p.Stats.TasksDropped.Load() != 1 {
		t.Fatalf("expected tasks_dropped=1, got %d", p.Stats.TasksDropped.Load())
	}
	close(block)
}

func TestWorkStealingDrainsAllWorkers(t *testing.T) {
	p := New(Config{Workers: 4, WorkStealing: true})
	var count atomic.Int64
	// Pin a burst of work onto a single worker's local deque; with
	// stealing enabled the other 3 idle workers should help drain it.
	for i := 0; i < 100; i++ {
		p.SubmitToWorker(0, func() { count.Add(1) }, Normal)
	}
	p.WaitAll()
	p.Shutdown()

	if count.Load() != 100 {
		t.Fatalf("expected 100 tasks run, got %d", count.Load())
	}
	if p.Stats.TasksStolen.Load() == 0 {
		t.Fatal("expected at least one steal across 4 workers under a single-worker burst")
	}
}

func TestCriticalPriorityDrainsFirst(t *testing.T) {
	p := New(Config{Workers: 1})
	defer p.Shutdown()

	var order []string
	done := make(chan struct{})
	block := make(chan struct{})

	p.Submit(func() { <-block }, Normal) // occupy the single worker
	time.Sleep(10 * time.Millisecond)

	p.Submit(func() { order = append(order, "low") }, Low)
	p.Submit(func() { order = append(order, "critical"); close(done) }, Critical)

	close(block)
	<-done
	time.Sleep(10 * time.Millisecond)

	if len(order) == 0 || order[0] != "critical" {
		t.Fatalf("expected critical task to run before low priority, got %v", order)
	}
}
