package domain

import (
	"context"
	"time"
)

type RateLimitDecision struct {
	Allowed   bool
	Remaining int
	RetryAt   time.Time
}

// RateLimiter enforces per-identity token buckets. Consuming a token must
// be a single atomic operation per identity key.
type RateLimiter interface {
	Allow(ctx context.Context, identity CallerIdentity) (RateLimitDecision, error)
}
