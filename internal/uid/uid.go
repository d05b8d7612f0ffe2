// Package uid provides unique identifier generation for CobaltStore.
package uid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// New generates a 32-character hex string suitable for use as a unique
// identifier (request IDs, temp file names, etc.) using crypto/rand.
func New() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// Fallback: timestamp-based ID. Should never happen with crypto/rand.
		return fmt.Sprintf("%032x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// NewUUID generates a random UUID string. Lease IDs are UUIDs unless the
// caller proposes one.
func NewUUID() string {
	return uuid.NewString()
}

// NewETag generates an opaque entity tag in the 0x-prefixed uppercase-hex
// form Azure Storage uses. Stored unquoted; the HTTP layer adds quotes.
func NewETag() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("0x%016X", time.Now().UnixNano())
	}
	return "0x" + strings.ToUpper(hex.EncodeToString(b))
}
