// Package ids generates request identifiers.
package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// NewRequestID returns a lexicographically sortable ULID for tagging a
// request in logs and the X-Request-ID header.
func NewRequestID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// ValidRequestID reports whether s is a ULID, so a caller-supplied request
// id can be echoed back instead of generating a new one.
func ValidRequestID(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
