// Package fingerprint provides content-addressed hashing for documents
// and chunks. Fingerprints drive change detection (skip vs. reindex) and
// chunk-level dedup, so they must depend only on content bytes, never on
// position or metadata.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of the given bytes.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SumString returns the hex-encoded SHA-256 digest of the given string.
func SumString(s string) string {
	return Sum([]byte(s))
}
