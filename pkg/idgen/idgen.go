// Package idgen mints opaque, collision-resistant identifiers for registry
// and token records.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New returns an opaque id of the form "<prefix>_<16 hex chars>".
func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is effectively unrecoverable on any real
		// platform; fall back to a still-unique, just not
		// cryptographically random, suffix rather than panic.
		return fmt.Sprintf("%s_%016x", prefix, uint64(time.Now().UnixNano()))
	}
	return fmt.Sprintf("%s_%s", prefix, hex.EncodeToString(buf))
}
