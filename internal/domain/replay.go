package domain

import (
	"context"
	"time"
)

type ReplayDecision struct {
	Fresh     bool
	FirstSeen time.Time
}

// ReplayGuard tracks request fingerprints within a TTL window.
// CheckAndRegister must be atomic: of two concurrent calls with the same
// fingerprint, exactly one observes Fresh. Unregister compensates a
// registration that must not count (a throttled request retrying
// unchanged is not a replay).
type ReplayGuard interface {
	CheckAndRegister(ctx context.Context, fingerprint string) (ReplayDecision, error)
	Unregister(ctx context.Context, fingerprint string) error
}
