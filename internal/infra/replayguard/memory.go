package replayguard

import (
	"context"
	"sync"
	"time"

	"github.com/Archive-Origin/backend-sub002/internal/domain"
)

// MemoryGuard is a fingerprint table with lazy TTL on lookup plus a
// background sweep. Check-and-register holds the lock for the whole
// test-and-insert so two concurrent identical requests cannot both be
// classified as first occurrence.
type MemoryGuard struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

type MemoryGuardConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
	Now           func() time.Time
}

func NewMemoryGuard(cfg MemoryGuardConfig) *MemoryGuard {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	g := &MemoryGuard{
		ttl:     cfg.TTL,
		now:     cfg.Now,
		entries: make(map[string]time.Time),
		stop:    make(chan struct{}),
	}
	if cfg.SweepInterval > 0 {
		go g.sweepLoop(cfg.SweepInterval)
	}
	return g
}

func (g *MemoryGuard) CheckAndRegister(_ context.Context, fingerprint string) (domain.ReplayDecision, error) {
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	firstSeen, ok := g.entries[fingerprint]
	if ok && now.Sub(firstSeen) < g.ttl {
		return domain.ReplayDecision{Fresh: false, FirstSeen: firstSeen}, nil
	}
	// Expired entries count as absent whether or not the sweep got to them.
	g.entries[fingerprint] = now
	return domain.ReplayDecision{Fresh: true, FirstSeen: now}, nil
}

func (g *MemoryGuard) Unregister(_ context.Context, fingerprint string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, fingerprint)
	return nil
}

func (g *MemoryGuard) Stop() {
	g.stopOnce.Do(func() { close(g.stop) })
}

func (g *MemoryGuard) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-g.stop:
			return
		case <-ticker.C:
			g.sweep()
		}
	}
}

func (g *MemoryGuard) sweep() {
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()
	for fp, firstSeen := range g.entries {
		if now.Sub(firstSeen) >= g.ttl {
			delete(g.entries, fp)
		}
	}
}

var _ domain.ReplayGuard = (*MemoryGuard)(nil)
