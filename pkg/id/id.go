// Package id issues time-sortable identifiers for pairs, simulated tickets
// and journal rows.
package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu   sync.Mutex
	mono io.Reader
)

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	// Monotonic keeps IDs from the same millisecond increasing.
	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New returns a ULID string stamped with the current time.
func New() string {
	return At(time.Now())
}

// At returns a ULID stamped with t. Callers driving an injected clock use
// this so identifiers sort with their own notion of time.
func At(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(t.UTC()), mono)
	if err != nil {
		// Only possible when entropy fails or t is before the epoch.
		panic(err)
	}
	return id.String()
}

// Prefixed returns prefix + "-" + a fresh ULID, lowercased for log grepping.
func Prefixed(prefix string, t time.Time) string {
	return prefix + "-" + strings.ToLower(At(t))
}

// Time extracts the timestamp encoded in a ULID produced by New or At.
func Time(s string) (time.Time, bool) {
	if i := strings.LastIndexByte(s, '-'); i >= 0 {
		s = s[i+1:]
	}
	u, err := ulid.ParseStrict(strings.ToUpper(s))
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(u.Time()), true
}
