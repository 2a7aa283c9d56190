package domain

import "time"

type VerificationStatus string

const (
	StatusVerified    VerificationStatus = "verified"
	StatusNotVerified VerificationStatus = "not_verified"
)

type Reason string

const (
	ReasonInvalidRequest     Reason = "invalid_request"
	ReasonRawMediaRejected   Reason = "raw_media_rejected"
	ReasonReplayed           Reason = "replayed"
	ReasonRateLimited        Reason = "rate_limited"
	ReasonLedgerNotFound     Reason = "ledger_not_found"
	ReasonAttestationRevoked Reason = "attestation_revoked"
	ReasonAttestationUnknown Reason = "attestation_unknown"
	ReasonSignatureInvalid   Reason = "signature_invalid"
	ReasonProofExpired       Reason = "proof_expired"
	ReasonPolicyDenied       Reason = "policy_denied"
)

// VerificationDetails carries independent booleans plus bounded
// human-readable notes. Notes come from a closed set so near-miss
// diagnostics cannot become a probing side channel.
type VerificationDetails struct {
	SignatureValid   bool     `json:"signature_valid"`
	AttestationValid bool     `json:"attestation_valid"`
	LedgerMatch      bool     `json:"ledger_match"`
	Notes            []string `json:"notes,omitempty"`
}

// VerificationResult is always a well-formed decision: verified with a
// matched entry, or not_verified with a reason. ExpiresAt bounds how long
// the caller may treat the result as current.
type VerificationResult struct {
	Status     VerificationStatus
	Reason     Reason
	Entry      *LedgerEntry
	ProofLevel ProofLevel
	Details    VerificationDetails
	ExpiresAt  time.Time
}

func NotVerified(reason Reason, details VerificationDetails, expiresAt time.Time) *VerificationResult {
	return &VerificationResult{
		Status:    StatusNotVerified,
		Reason:    reason,
		Details:   details,
		ExpiresAt: expiresAt,
	}
}
