package usecase

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/Archive-Origin/backend-sub002/internal/domain"
)

// Fingerprint derives the replay-cache key for a request: the hash
// triple plus the client nonce when present. Caller identity is
// deliberately excluded so the same request replayed through a different
// key still reads as a replay.
func Fingerprint(req domain.VerificationRequest) string {
	payload := make([]byte, 0, 4*domain.DigestHexLen+len(req.ClientNonce)+4)
	payload = append(payload, req.ContentHash...)
	payload = append(payload, '|')
	payload = append(payload, req.ManifestHash...)
	payload = append(payload, '|')
	payload = append(payload, req.SignatureHash...)
	if req.ClientNonce != "" {
		payload = append(payload, '|')
		payload = append(payload, req.ClientNonce...)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
