package riverlog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"riverlog/internal/gate"
	"riverlog/internal/metrics"
	"riverlog/internal/pool"
	"riverlog/internal/recordmodel"
	"riverlog/internal/redact"
	"riverlog/internal/ring"
	"riverlog/internal/rules"
	"riverlog/internal/schedule"
	"riverlog/internal/sink"
)

// Options configures a Logger (spec §4.13 "Held state").
type Options struct {
	MinLevel     Level
	ModuleLevels map[string]Level

	Filter      *gate.Filter
	Sampler     *gate.Sampler
	RateLimiter *gate.RateLimiter
	Redactor    *redact.Redactor
	Rules       *rules.Engine

	// Async, when true, routes every accepted record through a ring
	// buffer (C9) instead of writing directly on the caller's goroutine
	// (spec §9 "async queue vs direct write dispatch"). A zero
	// Ring.BufferSize gets 1024 slots.
	Async bool
	Ring  ring.Config

	// Housekeeping, if non-nil, starts a C10 Scheduler alongside the
	// Logger (spec §2 data flow, §4.10) driving periodic rotation
	// sweeps for every file sink with Rotation configured, plus any
	// caller-supplied tasks. This guarantees time-based rotation and
	// retention still fire on a sink that receives no writes for a
	// while, instead of relying entirely on Write's should_rotate check.
	Housekeeping *HousekeepingConfig

	// Pool, if non-nil, fans writeToAllSinks out across a C11
	// work-stealing thread pool instead of writing to every sink
	// serially on the calling goroutine (spec §2 "Thread pool (C11)
	// may fan out per-sink writes in parallel").
	Pool *pool.Config

	// OnLog, if set, is invoked once per record that reaches step 8 of
	// the emit algorithm (after sinks have been dispatched).
	OnLog func(Record)
}

// HousekeepingConfig configures the Logger's optional C10 Scheduler.
type HousekeepingConfig struct {
	// RotationCheckInterval, if > 0, registers one TaskRotation task per
	// file sink that has Rotation configured, forcing a rotation sweep
	// on this cadence regardless of write traffic (spec §4.10
	// TaskRotation).
	RotationCheckInterval time.Duration

	// Tasks are additional caller-supplied housekeeping jobs (cleanup,
	// health checks, custom) registered alongside the per-sink rotation
	// tasks above.
	Tasks []schedule.Task
}

// Logger is the public façade (C13): it owns the sink list and every
// optional pipeline stage, and implements the 8-step emit algorithm
// from spec §4.13. Grounded on the teacher's runPipeline orchestration
// in cmd/etl/main.go, generalized from a one-shot ETL run into a
// long-lived logging façade.
type Logger struct {
	mu sync.RWMutex

	minLevel     Level
	moduleLevels map[string]Level

	filter      *gate.Filter
	sampler     *gate.Sampler
	rateLimiter *gate.RateLimiter
	redactor    *redact.Redactor
	rules       *rules.Engine

	sinks   map[string]*sink.Sink
	metrics *metrics.Metrics
	ring    *ring.Buffer

	scheduler     *schedule.Scheduler
	schedulerStop context.CancelFunc
	housekeeping  *HousekeepingConfig
	pool          *pool.Pool
	ownsLifecycle bool // true only for the root Logger returned by New

	boundContext []recordmodel.ContextField
	onLog        func(Record)

	disabled atomic.Bool
}

// New builds a Logger from opts. Sinks are added afterward via AddSink.
func New(opts Options) *Logger {
	l := &Logger{
		minLevel:      opts.MinLevel,
		moduleLevels:  opts.ModuleLevels,
		filter:        opts.Filter,
		sampler:       opts.Sampler,
		rateLimiter:   opts.RateLimiter,
		redactor:      opts.Redactor,
		rules:         opts.Rules,
		sinks:         make(map[string]*sink.Sink),
		metrics:       metrics.New(),
		onLog:         opts.OnLog,
		ownsLifecycle: true,
	}
	if l.minLevel.Name == "" {
		l.minLevel = LevelInfo
	}
	if opts.Async {
		cfg := opts.Ring
		if cfg.BufferSize <= 0 {
			cfg.BufferSize = 1024
		}
		cfg.BackgroundWorker = true
		cfg.SinkWrite = l.writeToAllSinks
		l.ring = ring.New(cfg)
	}
	if opts.Pool != nil {
		l.pool = pool.New(*opts.Pool)
	}
	if opts.Housekeeping != nil {
		l.housekeeping = opts.Housekeeping
		l.scheduler = schedule.New()
		for i := range opts.Housekeeping.Tasks {
			t := opts.Housekeeping.Tasks[i]
			l.scheduler.AddTask(&t)
		}
		ctx, cancel := context.WithCancel(context.Background())
		l.schedulerStop = cancel
		l.scheduler.Start(ctx)
	}
	return l
}

// AddSink constructs and registers a sink from cfg. The sink's own
// metrics are wired to the Logger's shared Metrics (spec §4.12
// "per-sink counters").
func (l *Logger) AddSink(cfg sink.Config) error {
	l.mu.Lock()
	counters := l.metrics.ForSink(cfg.Name)
	s, err := sink.New(cfg, counters)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	l.sinks[cfg.Name] = s
	l.mu.Unlock()

	if l.scheduler != nil && s.HasRotation() && l.housekeeping.RotationCheckInterval > 0 {
		l.scheduler.AddTask(&schedule.Task{
			Name: "rotation-check:" + cfg.Name,
			Type: schedule.TaskRotation,
			Schedule: schedule.Schedule{
				Kind:     schedule.ScheduleInterval,
				Interval: l.housekeeping.RotationCheckInterval,
			},
			Enabled: true,
			Run: func(ctx context.Context) error {
				return s.ForceRotate()
			},
		})
	}
	return nil
}

// RemoveSink closes and unregisters the named sink.
func (l *Logger) RemoveSink(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sinks[name]
	if !ok {
		return nil
	}
	delete(l.sinks, name)
	return s.Close()
}

// SetModuleLevel overrides the effective minimum level for module.
func (l *Logger) SetModuleLevel(module string, level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.moduleLevels == nil {
		l.moduleLevels = make(map[string]Level)
	}
	l.moduleLevels[module] = level
}

// With returns a child Logger sharing every pipeline stage and sink but
// carrying additional bound context fields on every record it emits
// (spec §4.13 "bound context map"). Sharing, not copying, the sink map
// means Close on either logger closes sinks for both — callers should
// Close only the root logger.
func (l *Logger) With(fields ...ContextField) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	next := make([]recordmodel.ContextField, len(l.boundContext)+len(fields))
	copy(next, l.boundContext)
	copy(next[len(l.boundContext):], fields)
	return &Logger{
		minLevel:     l.minLevel,
		moduleLevels: l.moduleLevels,
		filter:       l.filter,
		sampler:      l.sampler,
		rateLimiter:  l.rateLimiter,
		redactor:     l.redactor,
		rules:        l.rules,
		sinks:        l.sinks,
		metrics:      l.metrics,
		ring:         l.ring,
		scheduler:    l.scheduler,
		housekeeping: l.housekeeping,
		pool:         l.pool,
		boundContext: next,
		onLog:        l.onLog,
	}
}

// Disable and Enable toggle step 1 of the emit algorithm.
func (l *Logger) Disable() { l.disabled.Store(true) }
func (l *Logger) Enable()  { l.disabled.Store(false) }

// Metrics returns a point-in-time snapshot (C12).
func (l *Logger) Metrics() metrics.Snapshot { return l.metrics.Get() }

// Log runs rec through the full emit algorithm (spec §4.13).
func (l *Logger) Log(rec Record) {
	// Step 1: disabled check.
	if l.disabled.Load() {
		return
	}

	// Step 2: effective minimum level (module override or global).
	if rec.Level.Less(l.effectiveMinLevel(rec.Source)) {
		return
	}

	// Step 3: Filter -> Sampler -> RateLimiter.
	if l.filter != nil && !l.filter.Allow(rec) {
		l.metrics.AddDropped(1)
		return
	}
	if l.sampler != nil && !l.sampler.Allow(rec) {
		l.metrics.AddDropped(1)
		return
	}
	if l.rateLimiter != nil && !l.rateLimiter.Allow(rec) {
		l.metrics.AddDropped(1)
		return
	}

	if len(l.boundContext) > 0 {
		rec.Context = append(append([]recordmodel.ContextField(nil), l.boundContext...), rec.Context...)
	}

	// Step 4: Redactor on message and context.
	if l.redactor != nil {
		rec.Message = l.redactor.RedactMessage(rec.Message)
		rec.Context = l.redactor.RedactContext(rec.Context)
	}

	// Step 5: Rules attach diagnostics.
	if l.rules != nil {
		l.rules.Evaluate(&rec)
	}

	// Step 6: per-level counters (per-sink counters update inside Write).
	l.metrics.AddRecord(len(rec.Message), rec.Level.Priority)

	// Step 7: dispatch to sinks, async or direct.
	if l.ring != nil {
		l.ring.Enqueue(rec)
	} else {
		l.writeToAllSinks(rec)
	}

	// Step 8: user callback.
	if l.onLog != nil {
		l.onLog(rec)
	}
}

func (l *Logger) effectiveMinLevel(src *recordmodel.Source) Level {
	if src == nil || src.Module == "" {
		return l.minLevel
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if lvl, ok := l.moduleLevels[src.Module]; ok {
		return lvl
	}
	return l.minLevel
}

// writeToAllSinks fans a record out to every registered sink, honoring
// each sink's own level window and filter (sink.Write already applies
// both). Used both as the direct-dispatch path and as the ring
// buffer's background-worker callback. When a C11 thread pool is
// configured, each sink's write is submitted as an independent Normal-
// priority task instead of running serially on the calling goroutine
// (spec §2 "Thread pool (C11) may fan out per-sink writes in
// parallel"); with a single sink this degenerates to one submission, so
// the pool path is only worth enabling with multiple sinks.
func (l *Logger) writeToAllSinks(rec Record) {
	l.mu.RLock()
	sinks := make([]*sink.Sink, 0, len(l.sinks))
	for _, s := range l.sinks {
		sinks = append(sinks, s)
	}
	p := l.pool
	l.mu.RUnlock()

	if p != nil {
		var wg sync.WaitGroup
		for _, s := range sinks {
			s := s
			if s.Disabled() {
				continue
			}
			wg.Add(1)
			p.Submit(func() {
				defer wg.Done()
				_ = s.Write(rec)
			}, pool.Normal)
		}
		wg.Wait()
		return
	}

	for _, s := range sinks {
		if s.Disabled() {
			continue
		}
		_ = s.Write(rec)
	}
}

// Flush flushes every sink and, if async dispatch is enabled, drains
// the ring buffer first so Flush observes every record already
// submitted to Log.
func (l *Logger) Flush() error {
	if l.ring != nil {
		for _, rec := range l.ring.DrainAll() {
			l.writeToAllSinks(rec)
		}
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	var firstErr error
	for _, s := range l.sinks {
		if err := s.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close stops the async worker, scheduler, and thread pool (if any) and
// closes every sink.
func (l *Logger) Close() error {
	// Ring buffer, scheduler and pool are shared with any child Logger
	// from With; only the owning (root) Logger tears them down — a
	// child's Close affects sinks only, matching the existing
	// sink-sharing contract.
	if l.ownsLifecycle {
		if l.ring != nil {
			l.ring.Stop()
		}
		if l.scheduler != nil {
			l.scheduler.Stop()
			l.schedulerStop()
		}
		if l.pool != nil {
			l.pool.Shutdown()
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for _, s := range l.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
