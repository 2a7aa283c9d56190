package domain

import "time"

type CertStatus string

const (
	CertStatusActive  CertStatus = "active"
	CertStatusRevoked CertStatus = "revoked"
	CertStatusUnknown CertStatus = "unknown"
)

// AttestationCertificate is created on ingestion and transitions to
// revoked only via a revocation-list match. It never transitions back to
// active automatically.
type AttestationCertificate struct {
	CertHash         string
	Serial           string
	Issuer           string
	PEM              []byte
	Source           string
	Status           CertStatus
	RevocationReason string
	RevokedAt        *time.Time
	IngestedAt       time.Time
}

// RevocationRecord is one entry from a revocation-list snapshot.
type RevocationRecord struct {
	Issuer    string
	Serial    string
	CertHash  string
	Reason    string
	RevokedAt time.Time
}

// CertStatusInfo is the answer to a status query; Reason and RevokedAt
// are only set for revoked certificates.
type CertStatusInfo struct {
	Status    CertStatus
	Reason    string
	RevokedAt *time.Time
}

type RefreshFailure struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

// RefreshOutcome reports one revocation refresh to its operator-facing
// caller. A failed source never reverts previously ingested state.
type RefreshOutcome struct {
	SourcesFetched int              `json:"sources_fetched"`
	RevokedSerials int              `json:"revoked_serials"`
	UpdatedCerts   int              `json:"updated_certs"`
	Failures       []RefreshFailure `json:"failures,omitempty"`
}
