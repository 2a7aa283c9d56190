package domain

import "time"

type ProofLevel string

const (
	ProofLevelUnrooted ProofLevel = "unrooted"
	ProofLevelPending  ProofLevel = "pending"
	ProofLevelRooted   ProofLevel = "rooted"
)

// HashTriple identifies at most one ledger entry.
type HashTriple struct {
	ContentHash   string
	ManifestHash  string
	SignatureHash string
}

// LedgerEntry is an append-only record; corrections are new records,
// never edits. ProofPath holds the sibling hashes needed to recompute
// MerkleRoot from the entry's leaf hash.
type LedgerEntry struct {
	EntryID       string
	ContentHash   string
	ManifestHash  string
	SignatureHash string
	Timestamp     time.Time
	ProofLevel    ProofLevel
	MerkleRoot    []byte
	LeafIndex     int64
	TreeSize      int64
	ProofPath     [][]byte
}

// LeafHash is the merkle leaf commitment for an entry: sha256 over the
// 0x00-prefixed concatenation of the triple, matching the tree's leaf
// domain separation.
func (e LedgerEntry) LeafHash() []byte {
	return LeafHashForTriple(HashTriple{
		ContentHash:   e.ContentHash,
		ManifestHash:  e.ManifestHash,
		SignatureHash: e.SignatureHash,
	})
}
