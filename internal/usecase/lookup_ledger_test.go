package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Archive-Origin/backend-sub002/internal/domain"
	"github.com/Archive-Origin/backend-sub002/internal/infra/cachemem"
)

type countingLedger struct {
	entry   *domain.LedgerEntry
	err     error
	lookups int
}

func (c *countingLedger) Lookup(context.Context, domain.HashTriple) (*domain.LedgerEntry, error) {
	c.lookups++
	if c.err != nil {
		return nil, c.err
	}
	return c.entry, nil
}

func (c *countingLedger) Diagnose(context.Context, domain.HashTriple) ([]string, error) {
	return nil, nil
}

func TestLookupLedgerReadThrough(t *testing.T) {
	raw := validRaw()
	triple := domain.HashTriple{
		ContentHash:   raw.ContentHash,
		ManifestHash:  raw.ManifestHash,
		SignatureHash: raw.SignatureHash,
	}
	ledger := &countingLedger{entry: rootedEntry(raw)}
	uc := &LookupLedger{
		Ledger:   ledger,
		Cache:    cachemem.New(),
		CacheTTL: time.Minute,
	}

	first, err := uc.Execute(context.Background(), triple)
	if err != nil {
		t.Fatalf("first lookup: %v", err)
	}
	second, err := uc.Execute(context.Background(), triple)
	if err != nil {
		t.Fatalf("second lookup: %v", err)
	}
	if ledger.lookups != 1 {
		t.Fatalf("second lookup must be served from cache, repository saw %d", ledger.lookups)
	}
	if first.EntryID != second.EntryID {
		t.Fatalf("cache must return the same entry")
	}
}

func TestLookupLedgerMissIsNotCached(t *testing.T) {
	raw := validRaw()
	triple := domain.HashTriple{
		ContentHash:   raw.ContentHash,
		ManifestHash:  raw.ManifestHash,
		SignatureHash: raw.SignatureHash,
	}
	ledger := &countingLedger{err: domain.ErrLedgerNotFound}
	uc := &LookupLedger{
		Ledger:   ledger,
		Cache:    cachemem.New(),
		CacheTTL: time.Minute,
	}

	if _, err := uc.Execute(context.Background(), triple); !errors.Is(err, domain.ErrLedgerNotFound) {
		t.Fatalf("expected ErrLedgerNotFound, got %v", err)
	}
	if _, err := uc.Execute(context.Background(), triple); !errors.Is(err, domain.ErrLedgerNotFound) {
		t.Fatalf("expected ErrLedgerNotFound, got %v", err)
	}
	if ledger.lookups != 2 {
		t.Fatalf("misses must not be cached, repository saw %d", ledger.lookups)
	}
}

func TestLookupLedgerWorksWithoutCache(t *testing.T) {
	raw := validRaw()
	triple := domain.HashTriple{
		ContentHash:   raw.ContentHash,
		ManifestHash:  raw.ManifestHash,
		SignatureHash: raw.SignatureHash,
	}
	uc := &LookupLedger{Ledger: &countingLedger{entry: rootedEntry(raw)}}

	entry, err := uc.Execute(context.Background(), triple)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if entry == nil {
		t.Fatalf("expected entry")
	}
}
