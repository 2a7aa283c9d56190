// Package proof verifies served ledger entries offline. A relying party
// that fetched an entry through the lookup surface can check the
// inclusion proof against the published root without trusting the
// daemon that served it.
package proof

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/Archive-Origin/backend-sub002/internal/domain"
	"github.com/Archive-Origin/backend-sub002/internal/infra/merkle"
)

// Entry mirrors the wire shape of a served ledger entry.
type Entry struct {
	ContentHash   string
	ManifestHash  string
	SignatureHash string
	LeafIndex     int64
	TreeSize      int64
	MerkleRoot    string
	ProofPath     []string
}

var ErrNotRooted = errors.New("entry carries no merkle root")

// Verify recomputes the leaf hash from the digests and walks the proof
// path. It reports true only when the path reproduces the entry's root.
func Verify(entry Entry) (bool, error) {
	triple := domain.HashTriple{
		ContentHash:   domain.NormalizeHexDigest(entry.ContentHash),
		ManifestHash:  domain.NormalizeHexDigest(entry.ManifestHash),
		SignatureHash: domain.NormalizeHexDigest(entry.SignatureHash),
	}
	if !domain.IsHexDigest(triple.ContentHash) ||
		!domain.IsHexDigest(triple.ManifestHash) ||
		!domain.IsHexDigest(triple.SignatureHash) {
		return false, errors.New("digests must be sha-256 hex")
	}
	if entry.MerkleRoot == "" {
		return false, ErrNotRooted
	}
	root, err := hex.DecodeString(entry.MerkleRoot)
	if err != nil {
		return false, fmt.Errorf("decode merkle root: %w", err)
	}
	path := make([][]byte, 0, len(entry.ProofPath))
	for i, node := range entry.ProofPath {
		decoded, err := hex.DecodeString(node)
		if err != nil {
			return false, fmt.Errorf("decode proof node %d: %w", i, err)
		}
		path = append(path, decoded)
	}
	leaf := domain.LeafHashForTriple(triple)
	return merkle.VerifyInclusion(leaf, entry.LeafIndex, entry.TreeSize, path, root)
}
