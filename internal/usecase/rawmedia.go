package usecase

import "strings"

// MediaHeuristics configures the raw-media predicate. Rejecting payloads
// that look like media or manifest blobs is a product boundary: this
// engine only ever sees digests.
type MediaHeuristics struct {
	Enabled           bool
	MaxFieldBytes     int
	MinPrintableRatio float64
}

const base64Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/="

// LooksLikeRawMedia reports whether a field value resembles embedded
// binary content rather than a malformed identifier. Kept as a single
// predicate so its thresholds can be tuned and tested in isolation.
func LooksLikeRawMedia(value string, cfg MediaHeuristics) bool {
	if !cfg.Enabled || value == "" {
		return false
	}
	if strings.HasPrefix(value, "data:") || strings.Contains(value, ";base64,") {
		return true
	}
	printable := 0
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c == '\t' || c == '\n' || c == '\r' || (c >= 0x20 && c <= 0x7e) {
			printable++
		}
	}
	if ratio := float64(printable) / float64(len(value)); ratio < cfg.MinPrintableRatio {
		return true
	}
	if cfg.MaxFieldBytes > 0 && len(value) > cfg.MaxFieldBytes && isMostlyBase64(value) {
		return true
	}
	return false
}

func isMostlyBase64(value string) bool {
	matched := 0
	for i := 0; i < len(value); i++ {
		if strings.IndexByte(base64Alphabet, value[i]) >= 0 {
			matched++
		}
	}
	return float64(matched)/float64(len(value)) > 0.95
}
