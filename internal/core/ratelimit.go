package core

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// defaultLimiterIdleTTL is how long an unused bucket is kept before it is
// evicted. A refilled bucket behaves like a fresh one, so eviction after the
// bucket is full loses no state.
const defaultLimiterIdleTTL = 10 * time.Minute

// MemoryRateLimitStore keeps one token bucket per key in process memory.
// Buckets refill at rps tokens per second up to burst.
type MemoryRateLimitStore struct {
	rps   rate.Limit
	burst int
	ttl   time.Duration
	now   func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewMemoryRateLimitStore creates a store allowing rps sustained requests per
// second per key, with bursts up to burst.
func NewMemoryRateLimitStore(rps float64, burst int) *MemoryRateLimitStore {
	if burst < 1 {
		burst = 1
	}
	return &MemoryRateLimitStore{
		rps:     rate.Limit(rps),
		burst:   burst,
		ttl:     defaultLimiterIdleTTL,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Allow implements RateLimitStore.
func (s *MemoryRateLimitStore) Allow(_ context.Context, key string) (RateLimitResult, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep(now)

	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(s.rps, s.burst)}
		s.buckets[key] = b
	}
	b.lastSeen = now

	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)

	return RateLimitResult{
		Allowed:   allowed,
		Limit:     s.burst,
		Remaining: int(math.Max(0, math.Floor(tokens))),
		ResetAt:   s.nextTokenAt(now, tokens),
	}, nil
}

// nextTokenAt returns when the bucket will hold at least one token.
func (s *MemoryRateLimitStore) nextTokenAt(now time.Time, tokens float64) time.Time {
	if tokens >= 1 || s.rps <= 0 {
		return now
	}
	wait := (1 - tokens) / float64(s.rps)
	return now.Add(time.Duration(wait * float64(time.Second)))
}

// sweep drops buckets idle for longer than ttl, at most once per ttl.
// Callers hold s.mu.
func (s *MemoryRateLimitStore) sweep(now time.Time) {
	if now.Sub(s.lastSweep) < s.ttl {
		return
	}
	s.lastSweep = now
	for key, b := range s.buckets {
		if now.Sub(b.lastSeen) > s.ttl {
			delete(s.buckets, key)
		}
	}
}

// Len reports the number of live buckets.
func (s *MemoryRateLimitStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}
