package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Archive-Origin/backend-sub002/internal/domain"

	"golang.org/x/time/rate"
)

// ClassLimit configures one identity class. RefillPerSec is the
// steady-state token refill rate; Capacity is the burst ceiling. A class
// with a non-positive capacity or refill enforces no quota.
type ClassLimit struct {
	Capacity     int
	RefillPerSec float64
}

type memoryLimiter struct {
	mu      sync.Mutex
	now     func() time.Time
	buckets map[string]*memoryBucket
	classes map[domain.IdentityClass]ClassLimit
	maxKeys int
}

type memoryBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type MemoryLimiterConfig struct {
	Anonymous ClassLimit
	APIKey    ClassLimit
	MaxKeys   int
	Now       func() time.Time
}

func NewMemoryLimiter(cfg MemoryLimiterConfig) domain.RateLimiter {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = 10000
	}
	return &memoryLimiter{
		now:     cfg.Now,
		buckets: make(map[string]*memoryBucket),
		classes: map[domain.IdentityClass]ClassLimit{
			domain.IdentityAnonymous: cfg.Anonymous,
			domain.IdentityAPIKey:    cfg.APIKey,
		},
		maxKeys: cfg.MaxKeys,
	}
}

func (m *memoryLimiter) Allow(_ context.Context, identity domain.CallerIdentity) (domain.RateLimitDecision, error) {
	limit, ok := m.classes[identity.Class]
	if !ok || limit.Capacity <= 0 || limit.RefillPerSec <= 0 {
		// A class without a complete quota (capacity and refill both
		// positive) enforces nothing.
		return domain.RateLimitDecision{Allowed: true, Remaining: -1}, nil
	}
	now := m.now()
	key := identity.BucketKey()

	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, ok := m.buckets[key]
	if !ok {
		if len(m.buckets) >= m.maxKeys {
			m.gc(now)
		}
		if len(m.buckets) >= m.maxKeys {
			return domain.RateLimitDecision{}, errors.New("rate limiter capacity exceeded")
		}
		bucket = &memoryBucket{
			limiter: rate.NewLimiter(rate.Limit(limit.RefillPerSec), limit.Capacity),
		}
		m.buckets[key] = bucket
	}
	bucket.lastSeen = now

	if bucket.limiter.AllowN(now, 1) {
		return domain.RateLimitDecision{
			Allowed:   true,
			Remaining: int(bucket.limiter.TokensAt(now)),
		}, nil
	}
	retryIn := time.Duration(float64(time.Second) / limit.RefillPerSec)
	return domain.RateLimitDecision{
		Allowed:   false,
		Remaining: 0,
		RetryAt:   now.Add(retryIn),
	}, nil
}

// gc drops buckets idle long enough to have refilled to capacity.
func (m *memoryLimiter) gc(now time.Time) {
	for key, bucket := range m.buckets {
		limit := bucket.limiter.Limit()
		idle := now.Sub(bucket.lastSeen)
		if limit <= 0 {
			delete(m.buckets, key)
			continue
		}
		refillAll := time.Duration(float64(bucket.limiter.Burst()) / float64(limit) * float64(time.Second))
		if idle > refillAll {
			delete(m.buckets, key)
		}
	}
}
