package gate

import (
	"sync"

	"golang.org/x/time/rate"

	"riverlog/internal/recordmodel"
)

// RateLimiter is a plain token bucket gated on max_per_second and
// burst_size (spec §4.3). When PerLevel is set, a distinct bucket is
// kept per level name, lazily created on first use.
//
// Grounded on golang.org/x/time/rate, the same token-bucket primitive
// the wider example pack reaches for (see SPEC_FULL.md §3 Domain
// Stack); the hand-rolled Anti Huimaa-style bucket in the pack's
// PresleyHank-go-lib was the fallback if x/time were unavailable.
type RateLimiter struct {
	maxPerSecond float64
	burstSize    int
	perLevel     bool

	mu      sync.Mutex
	global  *rate.Limiter
	buckets map[string]*rate.Limiter

	stats Stats
}

// NewRateLimiter builds a RateLimiter. perLevel keys buckets by level
// name instead of sharing one global bucket.
func NewRateLimiter(maxPerSecond float64, burstSize int, perLevel bool) *RateLimiter {
	rl := &RateLimiter{
		maxPerSecond: maxPerSecond,
		burstSize:    burstSize,
		perLevel:     perLevel,
	}
	if perLevel {
		rl.buckets = make(map[string]*rate.Limiter)
	} else {
		rl.global = rate.NewLimiter(rate.Limit(maxPerSecond), burstSize)
	}
	return rl
}

// Stats exposes the rate limiter's atomic counters.
func (rl *RateLimiter) Stats() *Stats { return &rl.stats }

// Allow reports whether rec may proceed, consuming a token on success.
func (rl *RateLimiter) Allow(rec recordmodel.Record) bool {
	if rl == nil {
		return true
	}
	limiter := rl.global
	if rl.perLevel {
		limiter = rl.bucketFor(rec.Level.Name)
	}
	ok := limiter.Allow()
	rl.stats.record(ok, rec.Level.Priority)
	return ok
}

func (rl *RateLimiter) bucketFor(level string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if l, ok := rl.buckets[level]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(rl.maxPerSecond), rl.burstSize)
	rl.buckets[level] = l
	return l
}
