package merkle

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"testing"
)

func testLeaves(n int) [][]byte {
	leaves := make([][]byte, n)
	for i := range leaves {
		sum := sha256.Sum256([]byte(fmt.Sprintf("leaf-%d", i)))
		leaves[i] = sum[:]
	}
	return leaves
}

func TestRootSingleLeaf(t *testing.T) {
	leaves := testLeaves(1)
	root, err := Root(leaves)
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	if !bytes.Equal(root, leaves[0]) {
		t.Fatalf("single-leaf root must equal the leaf hash")
	}
}

func TestRootEmptyTree(t *testing.T) {
	if _, err := Root(nil); err != ErrEmptyTree {
		t.Fatalf("expected ErrEmptyTree, got %v", err)
	}
}

func TestRootRejectsBadLeafLength(t *testing.T) {
	if _, err := Root([][]byte{[]byte("short")}); err == nil {
		t.Fatalf("expected error for malformed leaf")
	}
}

func TestRootTwoLeaves(t *testing.T) {
	leaves := testLeaves(2)
	root, err := Root(leaves)
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	want := NodeHash(leaves[0], leaves[1])
	if !bytes.Equal(root, want) {
		t.Fatalf("two-leaf root mismatch")
	}
}

func TestProofPathRoundTrip(t *testing.T) {
	for _, size := range []int{1, 2, 3, 4, 5, 7, 8, 13} {
		leaves := testLeaves(size)
		root, err := Root(leaves)
		if err != nil {
			t.Fatalf("size %d root: %v", size, err)
		}
		for i := 0; i < size; i++ {
			path, err := ProofPath(leaves, i)
			if err != nil {
				t.Fatalf("size %d leaf %d path: %v", size, i, err)
			}
			ok, err := VerifyInclusion(leaves[i], int64(i), int64(size), path, root)
			if err != nil {
				t.Fatalf("size %d leaf %d verify: %v", size, i, err)
			}
			if !ok {
				t.Fatalf("size %d leaf %d: proof did not verify", size, i)
			}
		}
	}
}

func TestVerifyInclusionRejectsTamperedLeaf(t *testing.T) {
	leaves := testLeaves(5)
	root, err := Root(leaves)
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	path, err := ProofPath(leaves, 2)
	if err != nil {
		t.Fatalf("path: %v", err)
	}
	tampered := sha256.Sum256([]byte("tampered"))
	ok, err := VerifyInclusion(tampered[:], 2, 5, path, root)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatalf("tampered leaf must not verify")
	}
}

func TestVerifyInclusionRejectsWrongIndex(t *testing.T) {
	leaves := testLeaves(4)
	root, err := Root(leaves)
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	path, err := ProofPath(leaves, 1)
	if err != nil {
		t.Fatalf("path: %v", err)
	}
	ok, err := VerifyInclusion(leaves[1], 2, 4, path, root)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatalf("proof for index 1 must not verify at index 2")
	}
}

func TestRootFromPathRejectsShortPath(t *testing.T) {
	leaves := testLeaves(8)
	path, err := ProofPath(leaves, 0)
	if err != nil {
		t.Fatalf("path: %v", err)
	}
	if _, err := RootFromPath(leaves[0], 0, 8, path[:len(path)-1]); err != ErrPathLength {
		t.Fatalf("expected ErrPathLength for truncated path, got %v", err)
	}
}

func TestRootFromPathRejectsLongPath(t *testing.T) {
	leaves := testLeaves(4)
	path, err := ProofPath(leaves, 0)
	if err != nil {
		t.Fatalf("path: %v", err)
	}
	extra := sha256.Sum256([]byte("extra"))
	if _, err := RootFromPath(leaves[0], 0, 4, append(path, extra[:])); err != ErrPathLength {
		t.Fatalf("expected ErrPathLength for padded path, got %v", err)
	}
}

func TestRootFromPathRejectsBadIndex(t *testing.T) {
	leaf := testLeaves(1)[0]
	if _, err := RootFromPath(leaf, 3, 2, nil); err != ErrInvalidIndex {
		t.Fatalf("expected ErrInvalidIndex, got %v", err)
	}
	if _, err := RootFromPath(leaf, 0, 0, nil); err != ErrInvalidSize {
		t.Fatalf("expected ErrInvalidSize, got %v", err)
	}
}
