package main

import (
	"context"
	"log"

	"github.com/Archive-Origin/backend-sub002/internal/config"
	"github.com/Archive-Origin/backend-sub002/internal/domain"
	"github.com/Archive-Origin/backend-sub002/internal/infra/attestation"
	"github.com/Archive-Origin/backend-sub002/internal/infra/cachemem"
	"github.com/Archive-Origin/backend-sub002/internal/infra/db"
	httpinfra "github.com/Archive-Origin/backend-sub002/internal/infra/http"
	"github.com/Archive-Origin/backend-sub002/internal/infra/ledgermem"
	"github.com/Archive-Origin/backend-sub002/internal/infra/policyopa"
	"github.com/Archive-Origin/backend-sub002/internal/infra/ratelimit"
	"github.com/Archive-Origin/backend-sub002/internal/infra/replayguard"
	"github.com/Archive-Origin/backend-sub002/internal/usecase"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	cfg := config.FromEnv()

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	store, err := db.NewStore(cfg)
	if err != nil {
		logger.Fatal("failed to init store", zap.Error(err))
	}

	var (
		ledgerRepo   usecase.LedgerRepository
		ledgerWriter usecase.LedgerWriter
		certSaver    httpinfra.CertPersister
		certRepo     *db.CertificateRepository
	)
	if store.Available() {
		if err := store.Migrate(); err != nil {
			logger.Fatal("failed to migrate schema", zap.Error(err))
		}
		repo := db.NewLedgerRepository(store.DB, nil)
		ledgerRepo = repo
		ledgerWriter = repo
		certRepo = db.NewCertificateRepository(store.DB, nil)
		certSaver = certRepo
		logger.Info("ledger backed by postgres")
	} else {
		mem := ledgermem.New()
		ledgerRepo = mem
		ledgerWriter = mem
		logger.Info("ledger backed by memory, entries do not survive restart")
	}

	certs := attestation.NewStore(attestation.StoreConfig{
		FetchTimeout: cfg.RevocationFetchTimeout(),
		Logger:       logger,
	})
	warmCertificates(certs, certRepo, logger)
	if cfg.AttestationSeedDir != "" {
		if _, _, err := certs.IngestDirectory(context.Background(), cfg.AttestationSeedDir); err != nil {
			logger.Warn("attestation seed ingest failed", zap.Error(err))
		}
	}
	if len(cfg.RevocationSources) > 0 {
		go func() {
			outcome, err := certs.RefreshRevocations(context.Background(), cfg.RevocationSources)
			if err != nil {
				logger.Warn("initial revocation refresh failed", zap.Error(err))
				return
			}
			logger.Info("initial revocation refresh complete",
				zap.Int("sources_fetched", outcome.SourcesFetched),
				zap.Int("revoked_serials", outcome.RevokedSerials))
		}()
	}

	verifyUC := &usecase.VerifyContent{
		Validator: usecase.ValidatorConfig{
			Media: usecase.MediaHeuristics{
				Enabled:           cfg.MediaHeuristicsEnabled,
				MaxFieldBytes:     cfg.MediaMaxFieldBytes,
				MinPrintableRatio: cfg.MediaMinPrintableRatio,
			},
			ManifestSummaryMaxBytes: cfg.ManifestSummaryMaxBytes,
		},
		Replay:             newReplayGuard(cfg, logger),
		Limiter:            newRateLimiter(cfg, logger),
		Ledger:             ledgerRepo,
		Certs:              certs,
		LookupTimeout:      cfg.LookupTimeout(),
		FreshnessWindow:    cfg.ResultFreshnessWindow(),
		PendingProofMaxAge: cfg.PendingProofMaxAge(),
		Logger:             logger,
	}
	if cfg.PolicyBundlePath != "" {
		engine, err := policyopa.NewEngineFromBundlePath(context.Background(), cfg.PolicyBundlePath, cfg.PolicyBundleID)
		if err != nil {
			logger.Fatal("failed to load policy bundle", zap.Error(err))
		}
		verifyUC.Policy = engine
		logger.Info("policy bundle loaded",
			zap.String("bundle_id", cfg.PolicyBundleID),
			zap.String("bundle_hash", engine.BundleHash()))
	}

	lookupUC := &usecase.LookupLedger{
		Ledger:   ledgerRepo,
		Cache:    cachemem.New(),
		CacheTTL: cfg.ResultFreshnessWindow(),
		Logger:   logger,
	}

	srv := httpinfra.NewServerWithDeps(cfg, httpinfra.ServerDeps{
		Verify:    verifyUC,
		Lookup:    lookupUC,
		Certs:     certs,
		Ingester:  certs,
		Refresher: certs,
		Writer:    ledgerWriter,
		CertSaver: certSaver,
		Store:     store,
		Logger:    logger,
	})
	logger.Info("listening", zap.String("addr", cfg.HTTPAddr))
	if err := srv.Run(); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func newReplayGuard(cfg config.Config, logger *zap.Logger) domain.ReplayGuard {
	if cfg.RedisAddr != "" {
		guard, err := replayguard.NewRedisGuard(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.ReplayWindow(), nil)
		if err == nil {
			logger.Info("replay guard backed by redis", zap.String("addr", cfg.RedisAddr))
			return guard
		}
		logger.Warn("redis replay guard unavailable, falling back to memory", zap.Error(err))
	}
	return replayguard.NewMemoryGuard(replayguard.MemoryGuardConfig{
		TTL:           cfg.ReplayWindow(),
		SweepInterval: cfg.ReplaySweepInterval(),
	})
}

func newRateLimiter(cfg config.Config, logger *zap.Logger) domain.RateLimiter {
	anon := ratelimit.ClassLimit{Capacity: cfg.RateAnonCapacity, RefillPerSec: cfg.RateAnonRefillPerSec}
	keyed := ratelimit.ClassLimit{Capacity: cfg.RateKeyCapacity, RefillPerSec: cfg.RateKeyRefillPerSec}
	if cfg.RedisAddr != "" {
		limiter, err := ratelimit.NewRedisLimiter(ratelimit.RedisLimiterConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			Anonymous: anon,
			APIKey:    keyed,
		})
		if err == nil {
			logger.Info("rate limiter backed by redis", zap.String("addr", cfg.RedisAddr))
			return limiter
		}
		logger.Warn("redis rate limiter unavailable, falling back to memory", zap.Error(err))
	}
	return ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{
		Anonymous: anon,
		APIKey:    keyed,
		MaxKeys:   cfg.RateLimitMaxKeys,
	})
}

func newLogger(level string) (*zap.Logger, error) {
	logCfg := zap.NewProductionConfig()
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}
	logCfg.Level = zap.NewAtomicLevelAt(lvl)
	return logCfg.Build()
}

func warmCertificates(certs *attestation.Store, repo *db.CertificateRepository, logger *zap.Logger) {
	if repo == nil {
		return
	}
	persisted, err := repo.ListAll(context.Background())
	if err != nil {
		logger.Warn("certificate warm-up failed", zap.Error(err))
		return
	}
	warmed := 0
	for _, cert := range persisted {
		if added, err := certs.IngestPersisted(context.Background(), cert); err != nil {
			logger.Warn("certificate warm-up skipped record",
				zap.String("cert_hash", cert.CertHash),
				zap.Error(err))
		} else if added {
			warmed++
		}
	}
	logger.Info("certificate store warmed", zap.Int("certs", warmed))
}
