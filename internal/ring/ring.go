// Package ring implements C9: the bounded MPMC ring buffer and its
// background worker, used when a Logger is configured for async
// dispatch instead of writing directly on the caller's goroutine
// (spec.md §4.9, §9 "async queue vs direct write dispatch").
package ring

import (
	"sync"
	"sync/atomic"
	"time"

	"riverlog/internal/recordmodel"
)

// OverflowPolicy selects what happens when a producer cannot reserve a
// slot (spec §4.9).
type OverflowPolicy int

const (
	DropOldest OverflowPolicy = iota
	DropNewest
	Block
	Expand
)

// Config configures a Buffer (spec §4.9).
type Config struct {
	BufferSize       int // rounded up to the next power of two
	BatchSize        int
	FlushInterval    time.Duration
	MinFlushInterval time.Duration
	MaxLatency       time.Duration
	OverflowPolicy   OverflowPolicy
	MaxCapacity      int // hard cap for OverflowPolicy == Expand; default 1<<20 (SPEC_FULL.md §6 Open Question decision)

	BackgroundWorker bool
	// SinkWrite is called once for each drained record; fanning the
	// record out to sinks is the callee's job. Errors are the sink's own concern (spec §4.6's per-sink
	// error callback); the worker does not retry.
	SinkWrite func(recordmodel.Record)
}

type slot struct {
	sequence    atomic.Uint64
	record      recordmodel.Record
	enqueuedAtNS int64
}

// Stats are the ring buffer's atomic counters (spec §4.9).
type Stats struct {
	RecordsQueued      atomic.Int64
	RecordsWritten     atomic.Int64
	RecordsDropped     atomic.Int64
	FlushCount         atomic.Int64
	TotalLatencyNS     atomic.Int64
	MaxLatencyNS       atomic.Int64
	BufferHighWatermark atomic.Int64
}

// Buffer is the bounded MPMC ring buffer from spec §4.9: a power-of-two
// array of slots, each carrying an atomic sequence number used to
// coordinate producers and the single consumer (the classic Vyukov
// bounded-queue pattern). It is not lock-free: the hot path takes the
// read side of an RWMutex, whose write side Expand and drop_oldest hold
// while they change the slot array or its tail.
type Buffer struct {
	cfg Config

	mu      sync.RWMutex // guards slots/mask during Expand; readers take RLock on the hot path
	slots   []slot
	mask    uint64
	enqSeq  atomic.Uint64 // producer enqueue cursor
	nextOut atomic.Uint64 // "tail" published for drop_oldest bookkeeping

	blockCond *sync.Cond
	blockMu   sync.Mutex

	stop      atomic.Bool
	drainDone chan struct{}

	Stats Stats
}

// New builds a Buffer sized to the next power of two >= cfg.BufferSize
// (minimum 1).
func New(cfg Config) *Buffer {
	size := nextPow2(cfg.BufferSize)
	if size == 0 {
		size = 1
	}
	if cfg.MaxCapacity == 0 {
		cfg.MaxCapacity = 1 << 20
	}
	b := &Buffer{
		cfg:       cfg,
		slots:     make([]slot, size),
		mask:      uint64(size - 1),
		drainDone: make(chan struct{}),
	}
	for i := range b.slots {
		b.slots[i].sequence.Store(uint64(i))
	}
	b.blockCond = sync.NewCond(&b.blockMu)

	if cfg.BackgroundWorker && cfg.SinkWrite != nil {
		go b.runWorker()
	}
	return b
}

func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Enqueue publishes rec onto the buffer, applying the configured
// overflow policy if the buffer is full (spec §4.9 "Overflow").
func (b *Buffer) Enqueue(rec recordmodel.Record) {
	b.mu.RLock()
	ok := b.tryEnqueueLocked(rec)
	b.mu.RUnlock()
	if ok {
		b.recordQueued()
		return
	}

	switch b.cfg.OverflowPolicy {
	case DropOldest:
		b.dropOldestAndRetry(rec)
	case DropNewest:
		b.Stats.RecordsDropped.Add(1)
	case Block:
		b.blockUntilEnqueued(rec)
	case Expand:
		b.expandAndEnqueue(rec)
	default:
		b.Stats.RecordsDropped.Add(1)
	}
}

func (b *Buffer) recordQueued() {
	b.Stats.RecordsQueued.Add(1)
	occ := int64(b.enqSeq.Load() - b.nextOut.Load())
	for {
		cur := b.Stats.BufferHighWatermark.Load()
		if occ <= cur || b.Stats.BufferHighWatermark.CompareAndSwap(cur, occ) {
			break
		}
	}
	b.blockMu.Lock()
	b.blockCond.Broadcast()
	b.blockMu.Unlock()
}

// tryEnqueueLocked attempts one slot reservation. Caller holds at
// least a read lock on b.mu (writers only take the write lock during
// Expand, which fully replaces the slot array).
func (b *Buffer) tryEnqueueLocked(rec recordmodel.Record) bool {
	for {
		seq := b.enqSeq.Load()
		s := &b.slots[seq&b.mask]
		slotSeq := s.sequence.Load()
		diff := int64(slotSeq) - int64(seq)
		switch {
		case diff == 0:
			if b.enqSeq.CompareAndSwap(seq, seq+1) {
				s.record = rec
				s.enqueuedAtNS = time.Now().UnixNano()
				s.sequence.Store(seq + 1)
				return true
			}
		case diff < 0:
			return false // slot not yet consumed: buffer full
		default:
			// Another producer already advanced past us; retry.
		}
	}
}

func (b *Buffer) dropOldestAndRetry(rec recordmodel.Record) {
	b.mu.Lock()
	tail := b.nextOut.Load()
	s := &b.slots[tail&b.mask]
	if s.sequence.Load() == tail+1 {
		s.sequence.Store(tail + uint64(len(b.slots)))
		b.nextOut.Add(1)
		b.Stats.RecordsDropped.Add(1)
	}
	b.mu.Unlock()

	b.mu.RLock()
	ok := b.tryEnqueueLocked(rec)
	b.mu.RUnlock()
	if ok {
		b.recordQueued()
		return
	}
	b.Stats.RecordsDropped.Add(1)
}

func (b *Buffer) blockUntilEnqueued(rec recordmodel.Record) {
	for {
		b.mu.RLock()
		ok := b.tryEnqueueLocked(rec)
		b.mu.RUnlock()
		if ok {
			b.recordQueued()
			return
		}
		b.blockMu.Lock()
		b.blockCond.Wait()
		b.blockMu.Unlock()
	}
}

// expandAndEnqueue doubles capacity up to MaxCapacity, falling back to
// drop_oldest once the cap is reached (spec §4.9).
func (b *Buffer) expandAndEnqueue(rec recordmodel.Record) {
	b.mu.Lock()
	if len(b.slots) >= b.cfg.MaxCapacity {
		b.mu.Unlock()
		b.dropOldestAndRetry(rec)
		return
	}
	newSize := len(b.slots) * 2
	if newSize > b.cfg.MaxCapacity {
		newSize = b.cfg.MaxCapacity
	}
	newSlots := make([]slot, newSize)
	newMask := uint64(newSize - 1)
	tail := b.nextOut.Load()
	head := b.enqSeq.Load()
	// Each free slot i is seeded with the first sequence >= tail that
	// maps onto it, so producers at enqSeq find it free.
	for i := range newSlots {
		newSlots[i].sequence.Store(tail + ((uint64(i) - tail) & newMask))
	}
	// Re-publish any already-written-but-unconsumed entries into the
	// new array at their original sequence positions.
	for seq := tail; seq < head; seq++ {
		old := &b.slots[seq&b.mask]
		if old.sequence.Load() != seq+1 {
			continue
		}
		ns := &newSlots[seq&uint64(newSize-1)]
		ns.record = old.record
		ns.sequence.Store(seq + 1)
	}
	b.slots = newSlots
	b.mask = uint64(newSize - 1)
	b.mu.Unlock()

	b.mu.RLock()
	ok := b.tryEnqueueLocked(rec)
	b.mu.RUnlock()
	if ok {
		b.recordQueued()
		return
	}
	b.dropOldestAndRetry(rec)
}

// dequeue pops up to max entries in FIFO order, returning however many
// were actually available.
func (b *Buffer) dequeue(max int) []recordmodel.Record {
	out := make([]recordmodel.Record, 0, max)
	now := time.Now().UnixNano()
	b.mu.RLock()
	defer b.mu.RUnlock()
	for len(out) < max {
		seq := b.nextOut.Load()
		s := &b.slots[seq&b.mask]
		slotSeq := s.sequence.Load()
		if slotSeq != seq+1 {
			break
		}
		rec := s.record
		latency := now - s.enqueuedAtNS
		if !b.nextOut.CompareAndSwap(seq, seq+1) {
			continue
		}
		s.sequence.Store(seq + uint64(len(b.slots)))
		out = append(out, rec)
		b.recordLatency(latency)
	}
	return out
}

func (b *Buffer) recordLatency(latencyNS int64) {
	if latencyNS < 0 {
		return
	}
	b.Stats.TotalLatencyNS.Add(latencyNS)
	for {
		cur := b.Stats.MaxLatencyNS.Load()
		if latencyNS <= cur || b.Stats.MaxLatencyNS.CompareAndSwap(cur, latencyNS) {
			break
		}
	}
}

// runWorker implements the background worker contract from spec §4.9.
func (b *Buffer) runWorker() {
	defer close(b.drainDone)
	lastFlush := time.Now()
	flushInterval := b.cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 100 * time.Millisecond
	}
	batchSize := b.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 64
	}

	for {
		b.blockMu.Lock()
		b.blockCond.Broadcast() // wake any blocked producer before checking stop
		b.blockMu.Unlock()

		entries := b.dequeue(batchSize)
		now := time.Now()
		sinceFlush := now.Sub(lastFlush)

		shouldFlush := len(entries) >= batchSize ||
			(len(entries) > 0 && sinceFlush >= b.cfg.MaxLatency && b.cfg.MaxLatency > 0) ||
			(len(entries) > 0 && b.cfg.MinFlushInterval <= 0)

		if len(entries) > 0 {
			// Entries already dequeued are never discarded: when the
			// throttle has not yet elapsed, wait it out before writing.
			if !shouldFlush && sinceFlush < b.cfg.MinFlushInterval {
				time.Sleep(b.cfg.MinFlushInterval - sinceFlush)
			}
			for _, rec := range entries {
				b.cfg.SinkWrite(rec)
				b.Stats.RecordsWritten.Add(1)
			}
			b.Stats.FlushCount.Add(1)
			lastFlush = time.Now()
		}

		if b.stop.Load() && len(entries) == 0 {
			return
		}
		if len(entries) == 0 {
			time.Sleep(flushInterval)
		}
	}
}

// Stop sets the drain flag, waits for the worker to process all
// remaining entries, and returns once it has exited (spec §4.9
// "Shutdown").
func (b *Buffer) Stop() {
	b.stop.Store(true)
	b.blockMu.Lock()
	b.blockCond.Broadcast()
	b.blockMu.Unlock()
	if b.cfg.BackgroundWorker && b.cfg.SinkWrite != nil {
		<-b.drainDone
	}
}

// Occupancy returns the records currently buffered (not yet drained).
func (b *Buffer) Occupancy() int {
	return int(b.enqSeq.Load() - b.nextOut.Load())
}

// DrainAll is used by the non-worker (background_worker=false) mode to
// synchronously pop everything currently buffered, e.g. from
// scenario S4's inspection of final buffer occupancy.
func (b *Buffer) DrainAll() []recordmodel.Record {
	return b.dequeue(int(b.Occupancy()))
}
