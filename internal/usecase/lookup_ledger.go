package usecase

import (
	"context"
	"time"

	"github.com/Archive-Origin/backend-sub002/internal/domain"

	"go.uber.org/zap"
)

// LookupLedger serves the read-side ledger endpoint with an optional
// read-through cache in front of the repository. Verification never goes
// through the cache; only external lookups do, since a stale proof there
// is harmless.
type LookupLedger struct {
	Ledger   LedgerRepository
	Cache    LedgerCache
	CacheTTL time.Duration
	Logger   *zap.Logger
}

func (uc *LookupLedger) Execute(ctx context.Context, triple domain.HashTriple) (*domain.LedgerEntry, error) {
	key := cacheKey(triple)
	if uc.Cache != nil {
		entry, ok, err := uc.Cache.Get(ctx, key)
		if err != nil {
			uc.logger().Warn("ledger cache read failed", zap.Error(err))
		} else if ok {
			return entry, nil
		}
	}

	entry, err := uc.Ledger.Lookup(ctx, triple)
	if err != nil {
		return nil, err
	}

	if uc.Cache != nil && uc.CacheTTL > 0 {
		if err := uc.Cache.Put(ctx, key, *entry, uc.CacheTTL); err != nil {
			uc.logger().Warn("ledger cache write failed", zap.Error(err))
		}
	}
	return entry, nil
}

func cacheKey(triple domain.HashTriple) string {
	return triple.ContentHash + "|" + triple.ManifestHash + "|" + triple.SignatureHash
}

func (uc *LookupLedger) logger() *zap.Logger {
	if uc.Logger != nil {
		return uc.Logger
	}
	return zap.NewNop()
}
