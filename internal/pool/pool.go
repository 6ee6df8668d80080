// Package pool implements C11: the work-stealing thread pool used to
// fan out per-sink writes and hand off scheduler tasks (spec.md §4.11).
package pool

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Priority orders task dispatch; Critical preempts the queue head.
type Priority int

const (
	Low Priority = iota
	Normal
	High
	Critical
)

// Task is a unit of work submitted to the pool.
type Task struct {
	Fn       func()
	Priority Priority

	submittedAtNS int64
}

// Stats are the pool's atomic counters (spec §4.11).
type Stats struct {
	TasksSubmitted  atomic.Int64
	TasksCompleted  atomic.Int64
	TasksDropped    atomic.Int64
	TasksStolen     atomic.Int64
	TotalWaitTimeNS atomic.Int64
	TotalExecTimeNS atomic.Int64
	ActiveThreads   atomic.Int64
}

// Throughput returns completed tasks per second of pool uptime.
func (s *Stats) Throughput(uptime time.Duration) float64 {
	secs := uptime.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(s.TasksCompleted.Load()) / secs
}

// worker owns a local deque (LIFO pop, head-steal by others), guarded
// by a plain mutex. Go has no compare-and-swap-friendly lock-free deque
// in the standard library, so — same substitution pattern used for
// thread-locals elsewhere in this module (sync.Pool, mutex-guarded
// rand.Rand) — a mutex-guarded slice stands in for the classic
// Chase-Lev array deque.
type worker struct {
	id   int
	mu   sync.Mutex
	deque []*Task

	wakeCh chan struct{}
}

func newWorker(id int) *worker {
	return &worker{id: id, wakeCh: make(chan struct{}, 1)}
}

func (w *worker) pushLocal(t *Task) {
	w.mu.Lock()
	w.deque = append(w.deque, t)
	w.mu.Unlock()
	w.wake()
}

// popLocal pops LIFO (from the tail, the end the owning worker itself
// appends to).
func (w *worker) popLocal() *Task {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := len(w.deque)
	if n == 0 {
		return nil
	}
	t := w.deque[n-1]
	w.deque = w.deque[:n-1]
	return t
}

// steal pops from the *head* of another worker's deque — the end
// farthest from where that worker pushes/pops, minimizing contention.
func (w *worker) steal() *Task {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.deque) == 0 {
		return nil
	}
	t := w.deque[0]
	w.deque = w.deque[1:]
	return t
}

func (w *worker) wake() {
	select {
	case w.wakeCh <- struct{}{}:
	default:
	}
}

// globalQueue is a four-bucket priority queue (one slice per Priority
// level); Critical always drains before lower priorities, including
// preempting ahead of already-queued Normal/Low/High entries.
type globalQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	buckets [4][]*Task
	closed  bool
}

func newGlobalQueue() *globalQueue {
	q := &globalQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *globalQueue) push(t *Task) {
	q.mu.Lock()
	q.buckets[t.Priority] = append(q.buckets[t.Priority], t)
	q.mu.Unlock()
	q.cond.Broadcast()
}

func (q *globalQueue) popNonBlocking() *Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

func (q *globalQueue) popLocked() *Task {
	for p := Critical; p >= Low; p-- {
		bucket := q.buckets[p]
		if len(bucket) > 0 {
			t := bucket[0]
			q.buckets[p] = bucket[1:]
			return t
		}
	}
	return nil
}

func (q *globalQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, b := range q.buckets {
		n += len(b)
	}
	return n
}

func (q *globalQueue) closeQueue() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Pool is the fixed-size work-stealing thread pool from spec §4.11.
type Pool struct {
	workers []*worker
	global  *globalQueue

	group   *errgroup.Group
	cancel  func()
	stopped atomic.Bool
	draining atomic.Bool

	startedAt time.Time
	rrNext    atomic.Uint64

	Stats Stats
}

// Config configures pool construction.
type Config struct {
	Workers      int // 0 = runtime.NumCPU()
	WorkStealing bool
	QueueLimit   int // not read by New or the pool; TrySubmit takes its limit as an argument
}

// New builds and starts a Pool with the given Config.
func New(cfg Config) *Pool {
	n := cfg.Workers
	if n <= 0 {
		n = runtime.NumCPU()
	}
	p := &Pool{
		global:    newGlobalQueue(),
		startedAt: time.Now(),
	}
	p.workers = make([]*worker, n)
	for i := range p.workers {
		p.workers[i] = newWorker(i)
	}

	g := &errgroup.Group{}
	p.group = g
	for i := range p.workers {
		w := p.workers[i]
		g.Go(func() error {
			p.runWorker(w, cfg.WorkStealing)
			return nil
		})
	}
	return p
}

// Submit enqueues t at the given priority onto the global queue; a
// free worker (or the next idle worker to wake) picks it up. Blocking
// only in the sense that it may briefly contend the queue mutex.
func (p *Pool) Submit(fn func(), priority Priority) {
	t := &Task{Fn: fn, Priority: priority, submittedAtNS: time.Now().UnixNano()}
	p.Stats.TasksSubmitted.Add(1)
	p.global.push(t)
}

// SubmitBatch submits every fn in fns at the given priority.
func (p *Pool) SubmitBatch(fns []func(), priority Priority) {
	for _, fn := range fns {
		p.Submit(fn, priority)
	}
}

// TrySubmit submits fn only if the global queue is under QueueLimit;
// returns false (and increments TasksDropped) otherwise. QueueLimit==0
// means unbounded, so TrySubmit always succeeds in that configuration.
func (p *Pool) TrySubmit(fn func(), priority Priority, queueLimit int) bool {
	if queueLimit > 0 && p.global.len() >= queueLimit {
		p.Stats.TasksDropped.Add(1)
		return false
	}
	p.Submit(fn, priority)
	return true
}

// SubmitToWorker pins fn directly onto one worker's local deque,
// bypassing the global queue and any stealing by that worker itself.
func (p *Pool) SubmitToWorker(workerID int, fn func(), priority Priority) {
	if workerID < 0 || workerID >= len(p.workers) {
		p.Submit(fn, priority)
		return
	}
	t := &Task{Fn: fn, Priority: priority, submittedAtNS: time.Now().UnixNano()}
	p.Stats.TasksSubmitted.Add(1)
	p.workers[workerID].pushLocal(t)
}

// WaitAll blocks until both the global queue and every worker's local
// deque are empty. It polls rather than using a single shared
// condition, since "empty" is a property of N+1 independent queues.
func (p *Pool) WaitAll() {
	for {
		if p.global.len() == 0 && p.allLocalDequesEmpty() {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

func (p *Pool) allLocalDequesEmpty() bool {
	for _, w := range p.workers {
		w.mu.Lock()
		n := len(w.deque)
		w.mu.Unlock()
		if n > 0 {
			return false
		}
	}
	return true
}

func (p *Pool) runWorker(w *worker, workStealing bool) {
	p.Stats.ActiveThreads.Add(1)
	defer p.Stats.ActiveThreads.Add(-1)

	idle := 0
	for {
		t := w.popLocal()
		if t == nil && workStealing {
			t = p.stealFrom(w)
		}
		if t == nil {
			t = p.global.popNonBlocking()
		}
		if t == nil {
			if p.draining.Load() {
				return
			}
			idle++
			p.parkIdle(w, idle)
			continue
		}
		idle = 0
		p.execute(t)
	}
}

func (p *Pool) stealFrom(self *worker) *Task {
	n := len(p.workers)
	if n <= 1 {
		return nil
	}
	start := int(p.rrNext.Add(1)) % n
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		victim := p.workers[idx]
		if victim == self {
			continue
		}
		if t := victim.steal(); t != nil {
			p.Stats.TasksStolen.Add(1)
			return t
		}
	}
	return nil
}

func (p *Pool) parkIdle(w *worker, attempt int) {
	wait := time.Millisecond
	if attempt > 10 {
		wait = 10 * time.Millisecond
	}
	select {
	case <-w.wakeCh:
	case <-time.After(wait):
	}
}

func (p *Pool) execute(t *Task) {
	p.Stats.TotalWaitTimeNS.Add(time.Now().UnixNano() - t.submittedAtNS)
	start := time.Now()
	t.Fn()
	p.Stats.TotalExecTimeNS.Add(time.Since(start).Nanoseconds())
	p.Stats.TasksCompleted.Add(1)
}

// Shutdown sets the drain flag and joins every worker once its local
// deque and the global queue have both drained (spec §4.11 "Shutdown").
func (p *Pool) Shutdown() {
	if p.stopped.Swap(true) {
		return
	}
	p.WaitAll()
	p.draining.Store(true)
	for _, w := range p.workers {
		w.wake()
	}
	p.global.closeQueue()
	_ = p.group.Wait()
}

// Uptime returns how long the pool has been running.
func (p *Pool) Uptime() time.Duration {
	return time.Since(p.startedAt)
}
