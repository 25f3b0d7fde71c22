// Package idgen generates cryptographically random identifiers.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// New returns a UUID-shaped random id:
// xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx.
func New() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:])
}

// WithPrefix returns prefix plus 24 hex chars. Prefixes in use are
// "ten_" for tenants, "ntf_" for notifications and "tpl_" for templates,
// so an id's kind is readable in logs.
func WithPrefix(prefix string) string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return prefix + hex.EncodeToString(b)
}

// Hex returns a random hex string covering numBytes of entropy.
func Hex(numBytes int) string {
	b := make([]byte, numBytes)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}
