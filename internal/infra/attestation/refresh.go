package attestation

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/Archive-Origin/backend-sub002/internal/domain"

	"go.uber.org/zap"
)

var crlReasonNames = map[int]string{
	0:  "unspecified",
	1:  "key_compromise",
	2:  "ca_compromise",
	3:  "affiliation_changed",
	4:  "superseded",
	5:  "cessation_of_operation",
	6:  "certificate_hold",
	8:  "remove_from_crl",
	9:  "privilege_withdrawn",
	10: "aa_compromise",
}

// RefreshRevocations fetches each source, parses its revocation list and
// swaps in a rebuilt index. A failing source keeps its previous
// successfully parsed records, so the index never regresses to empty on a
// transient fetch error; failures are reported to the caller, never
// swallowed.
func (s *Store) RefreshRevocations(ctx context.Context, sources []string) (domain.RefreshOutcome, error) {
	outcome := domain.RefreshOutcome{}
	prior := s.revocations.Load()

	fetched := make(map[string][]domain.RevocationRecord, len(sources))
	for _, source := range sources {
		records, err := s.fetchSource(ctx, source)
		if err != nil {
			outcome.Failures = append(outcome.Failures, domain.RefreshFailure{
				Source: source,
				Error:  err.Error(),
			})
			if lastGood, ok := prior.lastGood[source]; ok {
				fetched[source] = lastGood
			}
			s.logger.Warn("revocation source fetch failed",
				zap.String("source", source),
				zap.Error(err))
			continue
		}
		fetched[source] = records
		outcome.SourcesFetched++
	}

	// Rebuild from scratch rather than patching in place: readers see
	// exactly one snapshot.
	next := &revocationIndex{
		byIssuerSerial: make(map[string]domain.RevocationRecord),
		byCertHash:     make(map[string]domain.RevocationRecord),
		lastGood:       fetched,
		builtAt:        s.clock().UTC(),
	}
	for _, records := range fetched {
		for _, rev := range records {
			if rev.CertHash != "" {
				next.byCertHash[rev.CertHash] = rev
			}
			if rev.Serial != "" {
				next.byIssuerSerial[issuerSerialKey(rev.Issuer, rev.Serial)] = rev
			}
			outcome.RevokedSerials++
		}
	}
	s.revocations.Store(next)

	outcome.UpdatedCerts = s.applyRevocations(next)
	s.logger.Info("revocation refresh complete",
		zap.Int("sources_fetched", outcome.SourcesFetched),
		zap.Int("revoked_serials", outcome.RevokedSerials),
		zap.Int("updated_certs", outcome.UpdatedCerts),
		zap.Int("failures", len(outcome.Failures)))
	return outcome, nil
}

func (s *Store) fetchSource(ctx context.Context, source string) ([]domain.RevocationRecord, error) {
	fetchCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	raw, err := s.fetcher.Fetch(fetchCtx, source)
	if err != nil {
		return nil, err
	}
	return ParseRevocationList(raw)
}

// ParseRevocationList accepts a DER-encoded CRL or its PEM wrapping.
func ParseRevocationList(raw []byte) ([]domain.RevocationRecord, error) {
	crl, err := x509.ParseRevocationList(raw)
	if err != nil {
		block, _ := pem.Decode(raw)
		if block == nil {
			return nil, fmt.Errorf("parse revocation list: %w", err)
		}
		crl, err = x509.ParseRevocationList(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse revocation list: %w", err)
		}
	}
	issuer := crl.Issuer.String()
	records := make([]domain.RevocationRecord, 0, len(crl.RevokedCertificateEntries))
	for _, entry := range crl.RevokedCertificateEntries {
		reason := crlReasonNames[entry.ReasonCode]
		if reason == "" {
			reason = "unspecified"
		}
		records = append(records, domain.RevocationRecord{
			Issuer:    issuer,
			Serial:    entry.SerialNumber.Text(16),
			Reason:    reason,
			RevokedAt: entry.RevocationTime,
		})
	}
	return records, nil
}

// applyRevocations makes revocations sticky on certificate records.
func (s *Store) applyRevocations(idx *revocationIndex) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	updated := 0
	for _, cert := range s.certs {
		if cert.Status == domain.CertStatusRevoked {
			continue
		}
		if rev, ok := idx.match(cert); ok {
			markRevoked(cert, rev)
			updated++
		}
	}
	return updated
}
