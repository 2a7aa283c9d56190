package attestation

import (
	"context"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Archive-Origin/backend-sub002/internal/domain"

	"go.uber.org/zap"
)

// Store holds ingested attestation certificates and the revocation index
// built from revocation-list snapshots. Certificate writes are rare and
// mutex-guarded; the revocation index is replaced wholesale via an atomic
// pointer swap so status readers never observe a partial rebuild.
type Store struct {
	mu    sync.RWMutex
	certs map[string]*domain.AttestationCertificate

	revocations atomic.Pointer[revocationIndex]

	fetcher SourceFetcher
	timeout time.Duration
	clock   func() time.Time
	logger  *zap.Logger
}

type revocationIndex struct {
	byIssuerSerial map[string]domain.RevocationRecord
	byCertHash     map[string]domain.RevocationRecord
	// lastGood keeps each source's most recent successfully parsed
	// records so one failing source cannot erase another's snapshot.
	lastGood map[string][]domain.RevocationRecord
	builtAt  time.Time
}

type StoreConfig struct {
	Fetcher      SourceFetcher
	FetchTimeout time.Duration
	Clock        func() time.Time
	Logger       *zap.Logger
}

func NewStore(cfg StoreConfig) *Store {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Fetcher == nil {
		cfg.Fetcher = NewHTTPFetcher(cfg.FetchTimeout)
	}
	s := &Store{
		certs:   make(map[string]*domain.AttestationCertificate),
		fetcher: cfg.Fetcher,
		timeout: cfg.FetchTimeout,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
	}
	s.revocations.Store(&revocationIndex{
		byIssuerSerial: map[string]domain.RevocationRecord{},
		byCertHash:     map[string]domain.RevocationRecord{},
		lastGood:       map[string][]domain.RevocationRecord{},
	})
	return s
}

// IngestCert parses PEM or DER certificate material and indexes it by the
// sha256 of its DER encoding. Re-ingesting a known certificate is a
// no-op and reports false.
func (s *Store) IngestCert(_ context.Context, material []byte, source string) (certHash string, added bool, err error) {
	cert, pemBytes, err := parseCertificate(material)
	if err != nil {
		return "", false, err
	}
	sum := sha256.Sum256(cert.Raw)
	hash := hex.EncodeToString(sum[:])

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.certs[hash]; exists {
		return hash, false, nil
	}
	record := &domain.AttestationCertificate{
		CertHash:   hash,
		Serial:     cert.SerialNumber.Text(16),
		Issuer:     cert.Issuer.String(),
		PEM:        pemBytes,
		Source:     source,
		Status:     domain.CertStatusActive,
		IngestedAt: s.clock().UTC(),
	}
	// A cert already named by the current revocation snapshot is born
	// revoked; it never transitions back to active automatically.
	if rev, ok := s.revocations.Load().match(record); ok {
		markRevoked(record, rev)
	}
	s.certs[hash] = record
	return hash, true, nil
}

// IngestPersisted restores a certificate from durable storage with the
// status it was persisted under. Revocation is sticky across restarts: a
// record persisted as revoked re-enters revoked, never active, even
// before the first revocation refresh.
func (s *Store) IngestPersisted(_ context.Context, persisted *domain.AttestationCertificate) (added bool, err error) {
	cert, pemBytes, err := parseCertificate(persisted.PEM)
	if err != nil {
		return false, err
	}
	sum := sha256.Sum256(cert.Raw)
	hash := hex.EncodeToString(sum[:])

	record := &domain.AttestationCertificate{
		CertHash:         hash,
		Serial:           cert.SerialNumber.Text(16),
		Issuer:           cert.Issuer.String(),
		PEM:              pemBytes,
		Source:           persisted.Source,
		Status:           persisted.Status,
		RevocationReason: persisted.RevocationReason,
		IngestedAt:       persisted.IngestedAt,
	}
	if persisted.RevokedAt != nil {
		revokedAt := *persisted.RevokedAt
		record.RevokedAt = &revokedAt
	}
	if record.Status != domain.CertStatusRevoked {
		record.Status = domain.CertStatusActive
		if rev, ok := s.revocations.Load().match(record); ok {
			markRevoked(record, rev)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.certs[hash]; ok {
		if record.Status == domain.CertStatusRevoked && existing.Status != domain.CertStatusRevoked {
			existing.Status = domain.CertStatusRevoked
			existing.RevocationReason = record.RevocationReason
			existing.RevokedAt = record.RevokedAt
		}
		return false, nil
	}
	s.certs[hash] = record
	return true, nil
}

// IngestDirectory loads every certificate file under dir. Unparsable
// files are reported, not fatal.
func (s *Store) IngestDirectory(ctx context.Context, dir string) (ingested int, failures []domain.RefreshFailure, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, nil, fmt.Errorf("read seed directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !isCertFile(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		material, err := os.ReadFile(path)
		if err != nil {
			failures = append(failures, domain.RefreshFailure{Source: path, Error: err.Error()})
			continue
		}
		if _, added, err := s.IngestCert(ctx, material, path); err != nil {
			failures = append(failures, domain.RefreshFailure{Source: path, Error: err.Error()})
		} else if added {
			ingested++
		}
	}
	s.logger.Info("attestation seed ingest complete",
		zap.String("dir", dir),
		zap.Int("ingested", ingested),
		zap.Int("failures", len(failures)))
	return ingested, failures, nil
}

// Status answers Active / Revoked(reason) / Unknown. A certificate never
// ingested is Unknown; callers treat Unknown as untrusted.
func (s *Store) Status(ctx context.Context, certHash string) (domain.CertStatusInfo, error) {
	if err := ctx.Err(); err != nil {
		return domain.CertStatusInfo{Status: domain.CertStatusUnknown}, err
	}

	s.mu.RLock()
	cert, ok := s.certs[certHash]
	if !ok {
		s.mu.RUnlock()
		return domain.CertStatusInfo{Status: domain.CertStatusUnknown}, nil
	}
	if cert.Status == domain.CertStatusRevoked {
		info := domain.CertStatusInfo{
			Status: domain.CertStatusRevoked,
			Reason: cert.RevocationReason,
		}
		if cert.RevokedAt != nil {
			revokedAt := *cert.RevokedAt
			info.RevokedAt = &revokedAt
		}
		s.mu.RUnlock()
		return info, nil
	}
	// Identity fields never change after ingestion; copy them so the
	// index match runs without the lock while refreshes mutate status.
	identity := domain.AttestationCertificate{
		CertHash: cert.CertHash,
		Serial:   cert.Serial,
		Issuer:   cert.Issuer,
	}
	s.mu.RUnlock()

	if rev, ok := s.revocations.Load().match(&identity); ok {
		// Revocation observed after ingestion: make it sticky on the
		// certificate record as well.
		s.markCertRevoked(certHash, rev)
		return domain.CertStatusInfo{
			Status:    domain.CertStatusRevoked,
			Reason:    rev.Reason,
			RevokedAt: &rev.RevokedAt,
		}, nil
	}
	return domain.CertStatusInfo{Status: domain.CertStatusActive}, nil
}

// Get returns certificate metadata for the authenticated surface.
func (s *Store) Get(ctx context.Context, certHash string) (*domain.AttestationCertificate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	cert, ok := s.certs[certHash]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *cert
	out.PEM = append([]byte(nil), cert.PEM...)
	if cert.RevokedAt != nil {
		revokedAt := *cert.RevokedAt
		out.RevokedAt = &revokedAt
	}
	return &out, nil
}

func (s *Store) markCertRevoked(certHash string, rev domain.RevocationRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cert, ok := s.certs[certHash]
	if !ok || cert.Status == domain.CertStatusRevoked {
		return
	}
	markRevoked(cert, rev)
}

func markRevoked(cert *domain.AttestationCertificate, rev domain.RevocationRecord) {
	cert.Status = domain.CertStatusRevoked
	cert.RevocationReason = rev.Reason
	revokedAt := rev.RevokedAt
	cert.RevokedAt = &revokedAt
}

func (idx *revocationIndex) match(cert *domain.AttestationCertificate) (domain.RevocationRecord, bool) {
	if idx == nil {
		return domain.RevocationRecord{}, false
	}
	if rev, ok := idx.byCertHash[cert.CertHash]; ok {
		return rev, true
	}
	if rev, ok := idx.byIssuerSerial[issuerSerialKey(cert.Issuer, cert.Serial)]; ok {
		return rev, true
	}
	return domain.RevocationRecord{}, false
}

func issuerSerialKey(issuer, serial string) string {
	return issuer + "|" + strings.ToLower(serial)
}

func isCertFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pem", ".crt", ".cer", ".der":
		return true
	default:
		return false
	}
}

func parseCertificate(material []byte) (*x509.Certificate, []byte, error) {
	if block, _ := pem.Decode(material); block != nil {
		if block.Type != "CERTIFICATE" {
			return nil, nil, fmt.Errorf("unexpected pem block %q", block.Type)
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, nil, fmt.Errorf("parse certificate: %w", err)
		}
		return cert, pem.EncodeToMemory(block), nil
	}
	cert, err := x509.ParseCertificate(material)
	if err != nil {
		return nil, nil, errors.New("material is neither pem nor der certificate")
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	return cert, pemBytes, nil
}
