// Package metrics implements the lock-free counters behind spec C12:
// a process-owned struct of atomic counters plus a Get() that reads
// each once with acquire ordering and derives rates.
package metrics

import (
	"sync/atomic"
	"time"
)

// Metrics holds atomic counters. All fields are safe for concurrent use
// from any goroutine; none of them take a lock.
type Metrics struct {
	totalRecords   atomic.Int64
	totalBytes     atomic.Int64
	droppedRecords atomic.Int64
	errorCount     atomic.Int64
	startTimeNS    int64

	// per-level counts indexed by priority class (0..255), sparse in
	// practice so a map guarded by an RWMutex would also work, but a
	// fixed array keeps the hot path lock-free.
	levelCounts [256]atomic.Int64

	sinks map[string]*SinkCounters
}

// SinkCounters holds atomic counters scoped to one sink.
type SinkCounters struct {
	Written atomic.Int64
	Dropped atomic.Int64
	Errors  atomic.Int64
	Bytes   atomic.Int64
}

// New returns a Metrics with its start time set to now.
func New() *Metrics {
	return &Metrics{
		startTimeNS: time.Now().UnixNano(),
		sinks:       make(map[string]*SinkCounters),
	}
}

// ForSink returns (creating if needed) the per-sink counters for name.
// Sink registration happens at Logger.AddSink time, never on the hot
// path, so a plain map without a mutex would race; callers must only
// call ForSink during setup, or hold their own lock. The Logger
// guarantees this (see logger.go).
func (m *Metrics) ForSink(name string) *SinkCounters {
	if c, ok := m.sinks[name]; ok {
		return c
	}
	c := &SinkCounters{}
	m.sinks[name] = c
	return c
}

func (m *Metrics) AddRecord(bytes int, priority uint8) {
	m.totalRecords.Add(1)
	m.totalBytes.Add(int64(bytes))
	m.levelCounts[priority].Add(1)
}

func (m *Metrics) AddDropped(n int64)  { m.droppedRecords.Add(n) }
func (m *Metrics) AddError()           { m.errorCount.Add(1) }

// Snapshot is a point-in-time read of every counter plus derived rates.
type Snapshot struct {
	TotalRecords    int64
	TotalBytes      int64
	DroppedRecords  int64
	ErrorCount      int64
	UptimeMS        int64
	RecordsPerSec   float64
	BytesPerSec     float64
	DropRate        float64
	ErrorRate       float64
	PerLevel        map[uint8]int64
	PerSink         map[string]SinkSnapshot
}

// SinkSnapshot is a point-in-time read of one sink's counters.
type SinkSnapshot struct {
	Written int64
	Dropped int64
	Errors  int64
	Bytes   int64
}

// Get reads every atomic once (acquire ordering, per spec §5) and
// computes derived fields.
func (m *Metrics) Get() Snapshot {
	total := m.totalRecords.Load()
	dropped := m.droppedRecords.Load()
	uptimeNS := time.Now().UnixNano() - m.startTimeNS
	if uptimeNS <= 0 {
		uptimeNS = 1
	}
	uptimeSec := float64(uptimeNS) / 1e9

	s := Snapshot{
		TotalRecords:   total,
		TotalBytes:     m.totalBytes.Load(),
		DroppedRecords: dropped,
		ErrorCount:     m.errorCount.Load(),
		UptimeMS:       uptimeNS / int64(time.Millisecond),
		PerLevel:       make(map[uint8]int64),
		PerSink:        make(map[string]SinkSnapshot),
	}
	s.RecordsPerSec = float64(total) / uptimeSec
	s.BytesPerSec = float64(s.TotalBytes) / uptimeSec
	if total+dropped > 0 {
		s.DropRate = float64(dropped) / float64(total+dropped)
	}
	if total > 0 {
		s.ErrorRate = float64(s.ErrorCount) / float64(total)
	}
	for i := 0; i < 256; i++ {
		if v := m.levelCounts[i].Load(); v > 0 {
			s.PerLevel[uint8(i)] = v
		}
	}
	for name, c := range m.sinks {
		s.PerSink[name] = SinkSnapshot{
			Written: c.Written.Load(),
			Dropped: c.Dropped.Load(),
			Errors:  c.Errors.Load(),
			Bytes:   c.Bytes.Load(),
		}
	}
	return s
}
