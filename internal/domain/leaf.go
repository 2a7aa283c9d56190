package domain

import "crypto/sha256"

// LeafHashForTriple computes the merkle leaf commitment for a hash
// triple. The 0x00 prefix is leaf domain separation; interior nodes use
// 0x01 (see internal/infra/merkle).
func LeafHashForTriple(t HashTriple) []byte {
	hasher := sha256.New()
	hasher.Write([]byte{0x00})
	hasher.Write([]byte(t.ContentHash))
	hasher.Write([]byte{'|'})
	hasher.Write([]byte(t.ManifestHash))
	hasher.Write([]byte{'|'})
	hasher.Write([]byte(t.SignatureHash))
	return hasher.Sum(nil)
}
