package domain

import "errors"

var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrRawMediaRejected   = errors.New("raw media rejected")
	ErrReplayed           = errors.New("request replayed")
	ErrRateLimited        = errors.New("rate limited")
	ErrLedgerNotFound     = errors.New("ledger entry not found")
	ErrAttestationRevoked = errors.New("attestation certificate revoked")
	ErrAttestationUnknown = errors.New("attestation certificate unknown")
	ErrSignatureInvalid   = errors.New("signature invalid")
	ErrProofExpired       = errors.New("proof expired")
	ErrPolicyDenied       = errors.New("policy denied")
	ErrDuplicateEntry     = errors.New("duplicate ledger entry")
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
)
