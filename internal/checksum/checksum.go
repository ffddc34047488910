// Package checksum derives content hashes used as version markers for stores
// that do not provide their own.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const markerPrefix = "sha256:"

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Marker returns a version marker for payload data.
func Marker(data []byte) string {
	return markerPrefix + Sum(data)
}

// Matches reports whether marker was derived from data.
func Matches(marker string, data []byte) bool {
	return strings.HasPrefix(marker, markerPrefix) && marker == Marker(data)
}
