package imaging

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint derives the recognition cache key from a normalized base64
// payload. The digest covers the complete payload, so identical normalized
// bytes always map to the identical key and distinct images cannot collide
// short of a SHA-256 collision. This is a cache key, not an integrity
// guarantee.
func Fingerprint(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
