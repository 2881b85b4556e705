// Package ident derives short content-addressed task identifiers.
package ident

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Length is the number of hex characters kept from the digest (64 bits).
const Length = 16

// Derive returns the first Length hex characters of the SHA-256 of the
// concatenated parts.
func Derive(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "")))
	return hex.EncodeToString(sum[:])[:Length]
}
