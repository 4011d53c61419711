package credentials

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"io"
)

// tokenLength is the number of random bytes behind every raw token,
// 256 bits of entropy encoded as 64 hex characters.
const tokenLength = 32

// GenerateToken returns a cryptographically secure random token. The raw
// value is shown to the user exactly once; only its digest is ever stored.
func GenerateToken() (string, error) {
	b := make([]byte, tokenLength)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Digest computes the one-way hash stored in place of a raw token. It is
// deterministic so stored digests can be used for exact-match lookups.
func Digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// SecureCompare reports whether two strings are equal without leaking the
// position of the first difference.
func SecureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
