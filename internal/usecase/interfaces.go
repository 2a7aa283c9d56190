package usecase

import (
	"context"
	"time"

	"github.com/Archive-Origin/backend-sub002/internal/domain"
)

// LedgerRepository is the narrow read surface the pipeline consumes.
// Lookup is exact: all three hashes must coincide with a single entry.
// Diagnose returns bounded near-miss notes from a closed set.
type LedgerRepository interface {
	Lookup(ctx context.Context, triple domain.HashTriple) (*domain.LedgerEntry, error)
	Diagnose(ctx context.Context, triple domain.HashTriple) ([]string, error)
}

// LedgerWriter is the external ingestion path: append-only, plus root
// publication which anchors pending entries.
type LedgerWriter interface {
	Append(ctx context.Context, triple domain.HashTriple) (*domain.LedgerEntry, error)
	PublishRoot(ctx context.Context) ([]byte, error)
}

// CertificateSource answers attestation status queries.
type CertificateSource interface {
	Status(ctx context.Context, certHash string) (domain.CertStatusInfo, error)
	Get(ctx context.Context, certHash string) (*domain.AttestationCertificate, error)
}

type CertificateIngester interface {
	IngestCert(ctx context.Context, material []byte, source string) (certHash string, added bool, err error)
	IngestDirectory(ctx context.Context, dir string) (ingested int, failures []domain.RefreshFailure, err error)
}

type RevocationRefresher interface {
	RefreshRevocations(ctx context.Context, sources []string) (domain.RefreshOutcome, error)
}

type PolicyEngine interface {
	Evaluate(ctx context.Context, input domain.PolicyInput) (domain.PolicyEvaluation, error)
}

type LedgerCache interface {
	Get(ctx context.Context, key string) (*domain.LedgerEntry, bool, error)
	Put(ctx context.Context, key string, value domain.LedgerEntry, ttl time.Duration) error
}
