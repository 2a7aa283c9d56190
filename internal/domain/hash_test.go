package domain

import (
	"strings"
	"testing"
)

func TestIsHexDigest(t *testing.T) {
	valid := strings.Repeat("ab", 32)
	if !IsHexDigest(valid) {
		t.Fatalf("expected %q to be a valid digest", valid)
	}
	cases := []string{
		"",
		"abc",
		strings.Repeat("ab", 31),
		strings.Repeat("ab", 33),
		strings.Repeat("AB", 32),
		strings.Repeat("zz", 32),
	}
	for _, c := range cases {
		if IsHexDigest(c) {
			t.Fatalf("expected %q to be rejected", c)
		}
	}
}

func TestNormalizeHexDigest(t *testing.T) {
	got := NormalizeHexDigest("  " + strings.Repeat("AB", 32) + "\n")
	if got != strings.Repeat("ab", 32) {
		t.Fatalf("normalize failed: %q", got)
	}
}

func TestLeafHashForTripleDeterministic(t *testing.T) {
	triple := HashTriple{
		ContentHash:   strings.Repeat("aa", 32),
		ManifestHash:  strings.Repeat("bb", 32),
		SignatureHash: strings.Repeat("cc", 32),
	}
	first := LeafHashForTriple(triple)
	second := LeafHashForTriple(triple)
	if string(first) != string(second) {
		t.Fatalf("leaf hash must be deterministic")
	}
	if len(first) != 32 {
		t.Fatalf("leaf hash must be 32 bytes, got %d", len(first))
	}

	other := triple
	other.SignatureHash = strings.Repeat("dd", 32)
	if string(LeafHashForTriple(other)) == string(first) {
		t.Fatalf("different triples must hash differently")
	}
}

func TestCallerIdentityBucketKey(t *testing.T) {
	anon := CallerIdentity{Class: IdentityAnonymous, Key: "1.2.3.4"}
	keyed := CallerIdentity{Class: IdentityAPIKey, Key: "1.2.3.4"}
	if anon.BucketKey() == keyed.BucketKey() {
		t.Fatalf("identity classes must not share buckets")
	}
}
