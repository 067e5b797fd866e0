// Package fingerprint computes content fingerprints for change detection.
//
// A fingerprint is the SHA-256 digest of a source's extracted text. Two
// fetches of the same logical source with equal digests carry no new content
// and are skipped before any embedding work happens.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Digest is a 256-bit content fingerprint.
type Digest [sha256.Size]byte

// emptyDigest is the digest of empty text, treated as "no content".
var emptyDigest = sha256.Sum256(nil)

// Sum computes the fingerprint of the given text.
// Deterministic: the same text always yields the same digest.
func Sum(text string) Digest {
	return sha256.Sum256([]byte(text))
}

// Hex returns the lowercase hex encoding of the digest.
func (d Digest) Hex() string {
	return hex.EncodeToString(d[:])
}

// Short returns the first 16 hex characters, enough for log lines and
// human-facing snapshot labels.
func (d Digest) Short() string {
	return d.Hex()[:16]
}

// IsEmpty reports whether the digest is the well-defined digest of empty
// text, i.e. the source produced no content.
func (d Digest) IsEmpty() bool {
	return d == emptyDigest
}

// ParseHex decodes a hex-encoded digest. Returns false when the input is not
// a valid 64-character hex string.
func ParseHex(s string) (Digest, bool) {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != sha256.Size {
		return Digest{}, false
	}
	var d Digest
	copy(d[:], raw)
	return d, true
}

// DocID derives the stable document identifier for a (source, content) pair.
// Re-inserting identical content for the same source yields the same ID, so
// index upserts are idempotent.
func DocID(sourceID string, d Digest) string {
	h := sha256.New()
	h.Write([]byte(sourceID))
	h.Write([]byte{0})
	h.Write(d[:])
	return hex.EncodeToString(h.Sum(nil))
}
