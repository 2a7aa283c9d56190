package replayguard

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryGuardFirstThenReplay(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	guard := NewMemoryGuard(MemoryGuardConfig{
		TTL: 5 * time.Minute,
		Now: func() time.Time { return now },
	})
	defer guard.Stop()

	first, err := guard.CheckAndRegister(context.Background(), "fp-1")
	if err != nil {
		t.Fatalf("first check: %v", err)
	}
	if !first.Fresh {
		t.Fatalf("first occurrence must be fresh")
	}

	second, err := guard.CheckAndRegister(context.Background(), "fp-1")
	if err != nil {
		t.Fatalf("second check: %v", err)
	}
	if second.Fresh {
		t.Fatalf("second occurrence inside the window must be a replay")
	}
	if !second.FirstSeen.Equal(first.FirstSeen) {
		t.Fatalf("replay must report the original first-seen time")
	}
}

func TestMemoryGuardExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	guard := NewMemoryGuard(MemoryGuardConfig{
		TTL: time.Minute,
		Now: func() time.Time { return now },
	})
	defer guard.Stop()

	if _, err := guard.CheckAndRegister(context.Background(), "fp-1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	now = now.Add(time.Minute + time.Second)
	decision, err := guard.CheckAndRegister(context.Background(), "fp-1")
	if err != nil {
		t.Fatalf("check after window: %v", err)
	}
	if !decision.Fresh {
		t.Fatalf("fingerprint past the window must read as fresh")
	}
}

func TestMemoryGuardUnregister(t *testing.T) {
	guard := NewMemoryGuard(MemoryGuardConfig{TTL: time.Minute})
	defer guard.Stop()

	if _, err := guard.CheckAndRegister(context.Background(), "fp-1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := guard.Unregister(context.Background(), "fp-1"); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	decision, err := guard.CheckAndRegister(context.Background(), "fp-1")
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if !decision.Fresh {
		t.Fatalf("unregistered fingerprint must read as fresh")
	}
}

func TestMemoryGuardConcurrentSingleWinner(t *testing.T) {
	guard := NewMemoryGuard(MemoryGuardConfig{TTL: time.Minute})
	defer guard.Stop()

	const workers = 32
	var wg sync.WaitGroup
	fresh := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decision, err := guard.CheckAndRegister(context.Background(), "contended")
			if err != nil {
				t.Errorf("check: %v", err)
				return
			}
			fresh <- decision.Fresh
		}()
	}
	wg.Wait()
	close(fresh)

	winners := 0
	for f := range fresh {
		if f {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one fresh classification, got %d", winners)
	}
}

func TestMemoryGuardSweepDropsExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	guard := NewMemoryGuard(MemoryGuardConfig{
		TTL: time.Minute,
		Now: func() time.Time { return now },
	})
	defer guard.Stop()

	if _, err := guard.CheckAndRegister(context.Background(), "fp-1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	now = now.Add(2 * time.Minute)
	guard.sweep()

	guard.mu.Lock()
	remaining := len(guard.entries)
	guard.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("sweep must drop expired fingerprints, %d left", remaining)
	}
}
