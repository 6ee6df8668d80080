package gate

import (
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"riverlog/internal/recordmodel"
)

// SamplerStrategy identifies a Sampler's allow/deny policy (spec §4.3).
type SamplerStrategy int

const (
	StrategyNone SamplerStrategy = iota
	StrategyProbability
	StrategyEveryN
	StrategyRateLimit
	StrategyAdaptive
)

// SamplerConfig configures a Sampler. Only the fields relevant to
// Strategy are read.
type SamplerConfig struct {
	Strategy SamplerStrategy

	Probability float64 // StrategyProbability

	EveryN int64 // StrategyEveryN

	MaxRecords int     // StrategyRateLimit
	WindowMS   int64   // StrategyRateLimit

	TargetRate           float64       // StrategyAdaptive
	MinRate              float64       // StrategyAdaptive
	AdjustmentInterval time.Duration // StrategyAdaptive
}

// Sampler implements the none/probability/every_n/rate_limit/adaptive
// strategies from spec §4.3.
type Sampler struct {
	cfg SamplerConfig

	// probability: Go has no real thread-locals, so a mutex-guarded
	// *rand.Rand stands in (the same substitution used for the
	// formatter's scratch buffers via sync.Pool, per SPEC_FULL.md §4).
	rngMu sync.Mutex
	rng   *rand.Rand

	everyNCounter atomic.Int64

	limiter *rate.Limiter

	// adaptive state
	adaptiveP      atomic.Uint64 // math.Float64bits(p)
	windowAccepted atomic.Int64
	windowTotal    atomic.Int64
	stopAdaptive   chan struct{}

	stats Stats
}

// NewSampler builds a Sampler for cfg. seed controls the deterministic
// PRNG used by StrategyProbability (spec: "deterministic with a
// thread-local PRNG seeded at init").
func NewSampler(cfg SamplerConfig, seed int64) *Sampler {
	s := &Sampler{cfg: cfg}
	switch cfg.Strategy {
	case StrategyProbability:
		s.rng = rand.New(rand.NewSource(seed))
	case StrategyRateLimit:
		perSecond := float64(cfg.MaxRecords) / (float64(cfg.WindowMS) / 1000.0)
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), cfg.MaxRecords)
	case StrategyAdaptive:
		s.adaptiveP.Store(math.Float64bits(1.0))
		s.stopAdaptive = make(chan struct{})
		go s.runAdaptiveLoop()
	}
	return s
}

// Stats exposes the sampler's atomic counters.
func (s *Sampler) Stats() *Stats { return &s.stats }

// Stop terminates the adaptive-adjustment goroutine, if any. Safe to
// call on samplers using any other strategy (no-op).
func (s *Sampler) Stop() {
	if s.stopAdaptive != nil {
		close(s.stopAdaptive)
	}
}

// Allow reports whether rec should be emitted, per the configured
// sampling strategy.
func (s *Sampler) Allow(rec recordmodel.Record) bool {
	if s == nil || s.cfg.Strategy == StrategyNone {
		return true
	}
	var ok bool
	switch s.cfg.Strategy {
	case StrategyProbability:
		ok = s.allowProbability(s.cfg.Probability)
	case StrategyEveryN:
		ok = s.everyNCounter.Add(1)%s.cfg.EveryN == 0
	case StrategyRateLimit:
		ok = s.limiter.Allow()
	case StrategyAdaptive:
		ok = s.allowAdaptive()
	default:
		ok = true
	}
	s.stats.record(ok, rec.Level.Priority)
	return ok
}

func (s *Sampler) allowProbability(p float64) bool {
	s.rngMu.Lock()
	v := s.rng.Float64()
	s.rngMu.Unlock()
	return v < p
}

func (s *Sampler) allowAdaptive() bool {
	s.windowTotal.Add(1)
	p := math.Float64frombits(s.adaptiveP.Load())
	s.rngMu.Lock()
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(1))
	}
	v := s.rng.Float64()
	s.rngMu.Unlock()
	ok := v < p
	if ok {
		s.windowAccepted.Add(1)
	}
	return ok
}

// runAdaptiveLoop recomputes the sampling probability every
// AdjustmentInterval: p := clamp(target_rate / observed_rate, min_rate,
// 1.0), per spec §4.3.
func (s *Sampler) runAdaptiveLoop() {
	interval := s.cfg.AdjustmentInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopAdaptive:
			return
		case <-ticker.C:
			total := s.windowTotal.Swap(0)
			s.windowAccepted.Store(0)
			observedRate := float64(total) / interval.Seconds()
			var p float64
			if observedRate <= 0 {
				p = 1.0
			} else {
				p = s.cfg.TargetRate / observedRate
			}
			if p < s.cfg.MinRate {
				p = s.cfg.MinRate
			}
			if p > 1.0 {
				p = 1.0
			}
			s.adaptiveP.Store(math.Float64bits(p))
		}
	}
}
