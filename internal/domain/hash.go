package domain

import "strings"

// DigestHexLen is the length of a lowercase hex-encoded sha256 digest.
const DigestHexLen = 64

func IsHexDigest(value string) bool {
	if len(value) != DigestHexLen {
		return false
	}
	for i := 0; i < len(value); i++ {
		c := value[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// NormalizeHexDigest trims surrounding whitespace and lowercases A-F.
// Validation is the caller's job.
func NormalizeHexDigest(value string) string {
	value = strings.TrimSpace(value)
	lowered := make([]byte, len(value))
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c >= 'A' && c <= 'F' {
			c = c - 'A' + 'a'
		}
		lowered[i] = c
	}
	return string(lowered)
}
