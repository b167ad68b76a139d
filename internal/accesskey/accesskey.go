// Package accesskey issues and verifies opaque bearer credentials.
//
// A key is Prefix followed by 32 random bytes in unpadded URL-safe base64.
// Only the SHA-256 hex digest and a short display prefix are ever stored;
// the raw key is returned once at issuance.
package accesskey

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// Prefix marks every access key.
const Prefix = "kagi_"

const (
	randomBytes  = 32
	displayChars = 8
)

// Key is a freshly generated access key.
type Key struct {
	Token         string
	Hash          string
	DisplayPrefix string
}

// Generate draws a new random access key.
func Generate() (Key, error) {
	buf := make([]byte, randomBytes)
	if _, err := rand.Read(buf); err != nil {
		return Key{}, fmt.Errorf("generate access key: %w", err)
	}
	random := base64.RawURLEncoding.EncodeToString(buf)
	token := Prefix + random
	return Key{
		Token:         token,
		Hash:          Hash(token),
		DisplayPrefix: Prefix + random[:displayChars],
	}, nil
}

// Hash returns the lowercase hex SHA-256 digest of token.
func Hash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// IsAccessKey reports whether token carries the access key prefix.
func IsAccessKey(token string) bool {
	return strings.HasPrefix(token, Prefix)
}

// DisplayPrefix returns the identifying prefix of a presented token, or the
// whole token when it is shorter than a display prefix.
func DisplayPrefix(token string) string {
	if n := len(Prefix) + displayChars; len(token) > n {
		return token[:n]
	}
	return token
}
