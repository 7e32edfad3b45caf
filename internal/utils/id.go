package utils

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

const idLength = 20

// NewIdentity returns a best-effort unique 20-hex-character identity.
func NewIdentity() string {
	buf := make([]byte, idLength/2)
	if _, err := rand.Read(buf); err == nil {
		return hex.EncodeToString(buf)
	}

	// Fallback to a hashed timestamp if crypto/rand is unavailable.
	return ContentID(strconv.FormatInt(time.Now().UnixNano(), 10))
}

// ContentID returns the first 20 hex characters of the SHA-1 of parts.
func ContentID(parts ...string) string {
	sum := sha1.Sum([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])[:idLength]
}
