// Package ptest contains helpers shared by tests across the module.
package ptest

import (
	"crypto/sha256"
	"log/slog"
	"math/rand/v2"
	"testing"

	"github.com/neilotoole/slogt"
)

// NewLogger returns a logger that writes through t.Log,
// so output is associated with the test that produced it
// and only shown on failure or with -v.
func NewLogger(t testing.TB) *slog.Logger {
	return slogt.New(t, slogt.Text())
}

// RandomDataForTest returns sz pseudorandom bytes
// seeded from the test name,
// so payloads are stable across runs of the same test.
func RandomDataForTest(t testing.TB, sz int) []byte {
	t.Helper()

	// The digest is exactly a ChaCha8 seed, whatever the name length.
	src := rand.NewChaCha8(sha256.Sum256([]byte(t.Name())))

	out := make([]byte, sz)
	if _, err := src.Read(out); err != nil {
		t.Fatalf("reading random payload: %v", err)
	}
	return out
}
