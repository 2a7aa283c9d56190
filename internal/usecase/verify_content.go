package usecase

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/Archive-Origin/backend-sub002/internal/domain"
	"github.com/Archive-Origin/backend-sub002/internal/infra/merkle"

	"go.uber.org/zap"
)

// VerifyContent runs the decision pipeline:
// validate -> replay -> rate limit -> ledger -> attestation -> signature
// -> response assembly. Every stage either continues or terminates with a
// not-verified reason; callers always get a well-formed decision, never a
// bare error.
type VerifyContent struct {
	Validator ValidatorConfig
	Replay    domain.ReplayGuard
	Limiter   domain.RateLimiter
	Ledger    LedgerRepository
	Certs     CertificateSource
	Policy    PolicyEngine

	LookupTimeout      time.Duration
	FreshnessWindow    time.Duration
	PendingProofMaxAge time.Duration
	Clock              func() time.Time
	Logger             *zap.Logger
}

// Entry timestamps this far in the future indicate tampering rather than
// clock skew.
const timestampSkewTolerance = 5 * time.Minute

func (uc *VerifyContent) Execute(ctx context.Context, raw RawVerificationRequest) *domain.VerificationResult {
	now := uc.now()
	expiresAt := now.Add(uc.FreshnessWindow)
	details := domain.VerificationDetails{}

	req, vErr := ValidateRequest(raw, uc.Validator)
	if vErr != nil {
		return domain.NotVerified(vErr.Reason, details, expiresAt)
	}

	fingerprint := Fingerprint(req)
	replayed, registered := uc.checkReplay(ctx, fingerprint)
	if replayed {
		return domain.NotVerified(domain.ReasonReplayed, details, expiresAt)
	}

	if !uc.allow(ctx, req.Caller) {
		// A throttled request retrying unchanged must not read as a
		// replay, so its registration is compensated.
		if registered {
			uc.unregister(ctx, fingerprint)
		}
		return domain.NotVerified(domain.ReasonRateLimited, details, expiresAt)
	}

	entry, notes, ok := uc.lookupLedger(ctx, req.Triple())
	details.Notes = notes
	if !ok {
		return domain.NotVerified(domain.ReasonLedgerNotFound, details, expiresAt)
	}
	details.LedgerMatch = true

	if reason, note, valid := uc.checkAttestation(ctx, req.AttestationCertHash); !valid {
		if note != "" {
			details.Notes = append(details.Notes, note)
		}
		return domain.NotVerified(reason, details, expiresAt)
	}
	details.AttestationValid = true

	if reason, note, valid := uc.checkSignature(req, entry, now); !valid {
		if note != "" {
			details.Notes = append(details.Notes, note)
		}
		return domain.NotVerified(reason, details, expiresAt)
	}
	details.SignatureValid = true

	if uc.PendingProofMaxAge > 0 &&
		entry.ProofLevel != domain.ProofLevelRooted &&
		now.Sub(entry.Timestamp) > uc.PendingProofMaxAge {
		details.Notes = append(details.Notes, "ledger entry was never anchored within its proof window")
		return domain.NotVerified(domain.ReasonProofExpired, details, expiresAt)
	}

	proofLevel, note := uc.classifyProof(entry)
	if note != "" {
		details.Notes = append(details.Notes, note)
	}

	if uc.Policy != nil {
		if reason, denyNotes, denied := uc.applyPolicy(ctx, req, proofLevel, details); denied {
			details.Notes = append(details.Notes, denyNotes...)
			return domain.NotVerified(reason, details, expiresAt)
		}
	}

	return &domain.VerificationResult{
		Status:     domain.StatusVerified,
		Entry:      entry,
		ProofLevel: proofLevel,
		Details:    details,
		ExpiresAt:  expiresAt,
	}
}

// checkReplay reports (replayed, registered). A guard outage fails open:
// anti-replay is an abuse control, and refusing all traffic on a cache
// outage is worse than admitting a duplicate.
func (uc *VerifyContent) checkReplay(ctx context.Context, fingerprint string) (bool, bool) {
	if uc.Replay == nil {
		return false, false
	}
	decision, err := uc.Replay.CheckAndRegister(ctx, fingerprint)
	if err != nil {
		uc.logger().Warn("replay guard unavailable", zap.Error(err))
		return false, false
	}
	return !decision.Fresh, decision.Fresh
}

func (uc *VerifyContent) unregister(ctx context.Context, fingerprint string) {
	if err := uc.Replay.Unregister(ctx, fingerprint); err != nil {
		uc.logger().Warn("replay unregister failed", zap.Error(err))
	}
}

func (uc *VerifyContent) allow(ctx context.Context, identity domain.CallerIdentity) bool {
	if uc.Limiter == nil {
		return true
	}
	decision, err := uc.Limiter.Allow(ctx, identity)
	if err != nil {
		uc.logger().Warn("rate limiter unavailable", zap.Error(err))
		return true
	}
	return decision.Allowed
}

// lookupLedger bounds the lookup with a timeout; a timeout or storage
// fault is indistinguishable from not-found at the decision boundary.
func (uc *VerifyContent) lookupLedger(ctx context.Context, triple domain.HashTriple) (*domain.LedgerEntry, []string, bool) {
	lookupCtx := ctx
	if uc.LookupTimeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, uc.LookupTimeout)
		defer cancel()
	}
	entry, err := uc.Ledger.Lookup(lookupCtx, triple)
	if err == nil {
		return entry, nil, true
	}
	if !errors.Is(err, domain.ErrLedgerNotFound) {
		uc.logger().Warn("ledger lookup failed", zap.Error(err))
		return nil, nil, false
	}
	notes, diagErr := uc.Ledger.Diagnose(lookupCtx, triple)
	if diagErr != nil {
		return nil, nil, false
	}
	return nil, notes, false
}

func (uc *VerifyContent) checkAttestation(ctx context.Context, certHash string) (domain.Reason, string, bool) {
	statusCtx := ctx
	if uc.LookupTimeout > 0 {
		var cancel context.CancelFunc
		statusCtx, cancel = context.WithTimeout(ctx, uc.LookupTimeout)
		defer cancel()
	}
	info, err := uc.Certs.Status(statusCtx, certHash)
	if err != nil {
		// Fail closed: a store fault reads as unknown, and unknown is
		// never trusted.
		uc.logger().Warn("attestation status failed", zap.Error(err))
		return domain.ReasonAttestationUnknown, "", false
	}
	switch info.Status {
	case domain.CertStatusActive:
		return "", "", true
	case domain.CertStatusRevoked:
		note := "attestation certificate revoked"
		if info.Reason != "" {
			note += ": " + info.Reason
		}
		return domain.ReasonAttestationRevoked, note, false
	default:
		return domain.ReasonAttestationUnknown, "", false
	}
}

func (uc *VerifyContent) checkSignature(req domain.VerificationRequest, entry *domain.LedgerEntry, now time.Time) (domain.Reason, string, bool) {
	if entry.SignatureHash != req.SignatureHash {
		return domain.ReasonSignatureInvalid, "", false
	}
	if entry.Timestamp.After(now.Add(timestampSkewTolerance)) {
		return domain.ReasonSignatureInvalid, "ledger entry timestamp is in the future", false
	}
	return "", "", true
}

// classifyProof downgrades rooted to unrooted when the stored proof path
// does not reproduce the stored root. The downgrade is a note, not a
// terminal failure.
func (uc *VerifyContent) classifyProof(entry *domain.LedgerEntry) (domain.ProofLevel, string) {
	if entry.ProofLevel != domain.ProofLevelRooted {
		return entry.ProofLevel, ""
	}
	root, err := merkle.RootFromPath(entry.LeafHash(), entry.LeafIndex, entry.TreeSize, entry.ProofPath)
	if err != nil || !bytes.Equal(root, entry.MerkleRoot) {
		return domain.ProofLevelUnrooted, "merkle proof did not reproduce the stored root"
	}
	return domain.ProofLevelRooted, ""
}

// applyPolicy runs the optional deploy-time trust policy over the
// assembled details. Policy faults fail closed.
func (uc *VerifyContent) applyPolicy(ctx context.Context, req domain.VerificationRequest, proofLevel domain.ProofLevel, details domain.VerificationDetails) (domain.Reason, []string, bool) {
	input := domain.PolicyInput{
		ContentHash:         req.ContentHash,
		ManifestHash:        req.ManifestHash,
		SignatureHash:       req.SignatureHash,
		AttestationCertHash: req.AttestationCertHash,
		CallerClass:         string(req.Caller.Class),
		ProofLevel:          proofLevel,
		Details:             details,
	}
	eval, err := uc.Policy.Evaluate(ctx, input)
	if err != nil {
		uc.logger().Warn("policy evaluation failed", zap.Error(err))
		return domain.ReasonPolicyDenied, []string{"policy evaluation failed"}, true
	}
	if eval.Result.Allow {
		return "", nil, false
	}
	notes := make([]string, 0, len(eval.Result.Deny))
	for _, deny := range eval.Result.Deny {
		if deny.Code != "" {
			notes = append(notes, "policy deny: "+deny.Code)
		}
	}
	return domain.ReasonPolicyDenied, notes, true
}

func (uc *VerifyContent) now() time.Time {
	if uc.Clock != nil {
		return uc.Clock().UTC()
	}
	return time.Now().UTC()
}

func (uc *VerifyContent) logger() *zap.Logger {
	if uc.Logger != nil {
		return uc.Logger
	}
	return zap.NewNop()
}
