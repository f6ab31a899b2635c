// Package idgen generates sortable identifiers for commands.
package idgen

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// NewCommandID returns a ULID. IDs generated by one process sort in
// generation order, even within the same millisecond.
func NewCommandID() string {
	return NewCommandIDAt(time.Now())
}

// NewCommandIDAt returns a ULID stamped with t.
func NewCommandIDAt(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Time extracts the timestamp of a ULID produced by NewCommandID.
func Time(id string) (time.Time, error) {
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
