// Package traceid generates per-request trace identifiers.
//
// Every gateway response carries a trace id of the form
// tr-YYYYMMDD-HHMMSS-<6 base36 chars>, which ties HTTP responses, audit
// records, and log lines of the same request together.
package traceid

import (
	"crypto/rand"
	"regexp"
	"time"
)

const (
	prefix       = "tr"
	suffixLen    = 6
	base36Alpha  = "0123456789abcdefghijklmnopqrstuvwxyz"
	timeLayout   = "20060102-150405"
)

var pattern = regexp.MustCompile(`^tr-\d{8}-\d{6}-[0-9a-z]{6}$`)

// New returns a fresh trace id based on the current UTC time.
func New() string {
	return NewAt(time.Now().UTC())
}

// NewAt returns a trace id for the given timestamp. Split out for tests.
func NewAt(ts time.Time) string {
	var raw [suffixLen]byte
	// crypto/rand never fails on supported platforms; fall back to zeros if it does
	_, _ = rand.Read(raw[:])

	suffix := make([]byte, suffixLen)
	for i, b := range raw {
		suffix[i] = base36Alpha[int(b)%len(base36Alpha)]
	}

	return prefix + "-" + ts.Format(timeLayout) + "-" + string(suffix)
}

// Valid reports whether s has the trace id shape. Used by the HTTP layer to
// decide whether to echo a client-supplied trace id or mint a new one.
func Valid(s string) bool {
	return pattern.MatchString(s)
}
