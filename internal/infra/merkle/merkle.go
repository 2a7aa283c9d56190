package merkle

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
)

const HashSize = 32

var (
	ErrEmptyTree      = errors.New("empty merkle tree")
	ErrInvalidHashLen = errors.New("invalid hash length")
	ErrInvalidIndex   = errors.New("invalid leaf index")
	ErrInvalidSize    = errors.New("invalid tree size")
	ErrPathLength     = errors.New("proof path length mismatch")
)

// NodeHash combines two subtree roots. The 0x01 prefix separates interior
// nodes from leaves (leaves are hashed with a 0x00 prefix by the ledger).
func NodeHash(left, right []byte) []byte {
	hasher := sha256.New()
	hasher.Write([]byte{0x01})
	hasher.Write(left)
	hasher.Write(right)
	return hasher.Sum(nil)
}

// Root computes the tree head over the given leaf hashes using the
// RFC 6962 split: the left subtree is the largest power of two smaller
// than the leaf count.
func Root(leaves [][]byte) ([]byte, error) {
	level, err := cloneLeaves(leaves)
	if err != nil {
		return nil, err
	}
	return subtreeRoot(level), nil
}

// ProofPath returns the ordered sibling hashes proving inclusion of
// leafIndex, leaf-nearest sibling first.
func ProofPath(leaves [][]byte, leafIndex int) ([][]byte, error) {
	level, err := cloneLeaves(leaves)
	if err != nil {
		return nil, err
	}
	if leafIndex < 0 || leafIndex >= len(level) {
		return nil, ErrInvalidIndex
	}
	var path [][]byte
	appendPath(level, leafIndex, &path)
	return path, nil
}

// RootFromPath recomputes the root committed to by a proof path. It is a
// pure function: callers compare the result against a stored root to
// decide whether an entry is anchored.
func RootFromPath(leafHash []byte, leafIndex, treeSize int64, path [][]byte) ([]byte, error) {
	if treeSize <= 0 {
		return nil, ErrInvalidSize
	}
	if leafIndex < 0 || leafIndex >= treeSize {
		return nil, ErrInvalidIndex
	}
	if err := checkHash(leafHash); err != nil {
		return nil, err
	}
	for _, sibling := range path {
		if err := checkHash(sibling); err != nil {
			return nil, err
		}
	}
	root, used, err := rootFromPath(leafHash, leafIndex, treeSize, path)
	if err != nil {
		return nil, err
	}
	if used != len(path) {
		return nil, ErrPathLength
	}
	return root, nil
}

// VerifyInclusion reports whether the path proves leafHash at leafIndex
// under expectedRoot for a tree of treeSize leaves.
func VerifyInclusion(leafHash []byte, leafIndex, treeSize int64, path [][]byte, expectedRoot []byte) (bool, error) {
	if err := checkHash(expectedRoot); err != nil {
		return false, err
	}
	root, err := RootFromPath(leafHash, leafIndex, treeSize, path)
	if err != nil {
		return false, err
	}
	return bytes.Equal(root, expectedRoot), nil
}

func subtreeRoot(leaves [][]byte) []byte {
	if len(leaves) == 1 {
		return leaves[0]
	}
	k := splitPoint(len(leaves))
	return NodeHash(subtreeRoot(leaves[:k]), subtreeRoot(leaves[k:]))
}

func appendPath(leaves [][]byte, leafIndex int, path *[][]byte) {
	if len(leaves) == 1 {
		return
	}
	k := splitPoint(len(leaves))
	if leafIndex < k {
		appendPath(leaves[:k], leafIndex, path)
		*path = append(*path, subtreeRoot(leaves[k:]))
		return
	}
	appendPath(leaves[k:], leafIndex-k, path)
	*path = append(*path, subtreeRoot(leaves[:k]))
}

func rootFromPath(leafHash []byte, leafIndex, treeSize int64, path [][]byte) ([]byte, int, error) {
	if treeSize == 1 {
		if leafIndex != 0 {
			return nil, 0, ErrInvalidIndex
		}
		return cloneHash(leafHash), 0, nil
	}
	k := int64(splitPoint(int(treeSize)))
	if leafIndex < k {
		left, used, err := rootFromPath(leafHash, leafIndex, k, path)
		if err != nil {
			return nil, 0, err
		}
		if used >= len(path) {
			return nil, 0, ErrPathLength
		}
		return NodeHash(left, path[used]), used + 1, nil
	}
	right, used, err := rootFromPath(leafHash, leafIndex-k, treeSize-k, path)
	if err != nil {
		return nil, 0, err
	}
	if used >= len(path) {
		return nil, 0, ErrPathLength
	}
	return NodeHash(path[used], right), used + 1, nil
}

func splitPoint(size int) int {
	power := 1
	for power<<1 < size {
		power <<= 1
	}
	return power
}

func cloneLeaves(leaves [][]byte) ([][]byte, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}
	out := make([][]byte, len(leaves))
	for i, leaf := range leaves {
		if err := checkHash(leaf); err != nil {
			return nil, fmt.Errorf("leaf %d: %w", i, err)
		}
		out[i] = cloneHash(leaf)
	}
	return out, nil
}

func checkHash(hash []byte) error {
	if len(hash) != HashSize {
		return ErrInvalidHashLen
	}
	return nil
}

func cloneHash(hash []byte) []byte {
	out := make([]byte, len(hash))
	copy(out, hash)
	return out
}
