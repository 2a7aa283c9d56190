package usecase

import (
	"fmt"

	"github.com/Archive-Origin/backend-sub002/internal/domain"
)

// RawVerificationRequest is the unvalidated wire-level input.
type RawVerificationRequest struct {
	ContentHash         string
	ManifestHash        string
	SignatureHash       string
	AttestationCertHash string
	ManifestSummary     map[string]string
	ClientNonce         string
	ClientVersion       string
	Caller              domain.CallerIdentity
}

type ValidatorConfig struct {
	Media                   MediaHeuristics
	ManifestSummaryMaxBytes int
}

// ValidationError distinguishes a malformed request from one carrying
// what looks like raw content.
type ValidationError struct {
	Reason domain.Reason
	Field  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Field)
}

const maxClientNonceLen = 128

// Keys a manifest summary may carry; everything else is stripped.
var summaryAllowList = map[string]bool{
	"title":       true,
	"description": true,
	"author":      true,
	"captured_at": true,
}

// ValidateRequest normalizes raw fields into a VerificationRequest or
// fails before any stateful check runs. No side effects.
func ValidateRequest(raw RawVerificationRequest, cfg ValidatorConfig) (domain.VerificationRequest, *ValidationError) {
	req := domain.VerificationRequest{
		ClientVersion: raw.ClientVersion,
		Caller:        raw.Caller,
	}

	hashes := []struct {
		field string
		value string
		dst   *string
	}{
		{"content_hash", raw.ContentHash, &req.ContentHash},
		{"manifest_hash", raw.ManifestHash, &req.ManifestHash},
		{"signature_hash", raw.SignatureHash, &req.SignatureHash},
		{"attestation_cert_hash", raw.AttestationCertHash, &req.AttestationCertHash},
	}
	for _, h := range hashes {
		if len(h.value) != domain.DigestHexLen && LooksLikeRawMedia(h.value, cfg.Media) {
			return domain.VerificationRequest{}, &ValidationError{Reason: domain.ReasonRawMediaRejected, Field: h.field}
		}
		normalized := domain.NormalizeHexDigest(h.value)
		if !domain.IsHexDigest(normalized) {
			return domain.VerificationRequest{}, &ValidationError{Reason: domain.ReasonInvalidRequest, Field: h.field}
		}
		*h.dst = normalized
	}

	if len(raw.ClientNonce) > maxClientNonceLen {
		if LooksLikeRawMedia(raw.ClientNonce, cfg.Media) {
			return domain.VerificationRequest{}, &ValidationError{Reason: domain.ReasonRawMediaRejected, Field: "client_nonce"}
		}
		return domain.VerificationRequest{}, &ValidationError{Reason: domain.ReasonInvalidRequest, Field: "client_nonce"}
	}
	req.ClientNonce = raw.ClientNonce

	if raw.ManifestSummary != nil {
		summary := make(map[string]string)
		total := 0
		for key, value := range raw.ManifestSummary {
			if !summaryAllowList[key] {
				continue
			}
			if LooksLikeRawMedia(value, cfg.Media) {
				return domain.VerificationRequest{}, &ValidationError{Reason: domain.ReasonRawMediaRejected, Field: "manifest_summary." + key}
			}
			total += len(key) + len(value)
			if cfg.ManifestSummaryMaxBytes > 0 && total > cfg.ManifestSummaryMaxBytes {
				return domain.VerificationRequest{}, &ValidationError{Reason: domain.ReasonInvalidRequest, Field: "manifest_summary"}
			}
			summary[key] = value
		}
		if len(summary) > 0 {
			req.ManifestSummary = summary
		}
	}
	return req, nil
}
