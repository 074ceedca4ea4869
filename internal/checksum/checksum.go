// Package checksum computes content digests used for page checksums and
// HTTP entity tags.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ETag returns sum as a strong entity tag.
func ETag(sum string) string {
	return `"` + sum + `"`
}

// Match reports whether an If-None-Match header value matches sum. The
// header may list several tags, weak ones included, or be "*".
func Match(header, sum string) bool {
	if sum == "" {
		return false
	}
	for _, tag := range strings.Split(header, ",") {
		tag = strings.TrimSpace(tag)
		if tag == "*" {
			return true
		}
		tag = strings.TrimPrefix(tag, "W/")
		if strings.Trim(tag, `"`) == sum {
			return true
		}
	}
	return false
}
