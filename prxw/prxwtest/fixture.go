// Package prxwtest contains helpers for testing code built on [prxw.Window].
package prxwtest

import (
	"testing"
	"time"

	"github.com/gordian-engine/pgm/internal/ptest"
	"github.com/gordian-engine/pgm/prxw"
	"github.com/gordian-engine/pgm/pskb"
	"github.com/gordian-engine/pgm/psqn"
	"github.com/stretchr/testify/require"
)

// Fixture is a receive window with a controllable clock
// and helpers to build and admit packets.
//
// Create an instance with [NewFixture].
type Fixture struct {
	W *prxw.Window

	// Current time passed to the window.
	Now time.Time

	// Offset from Now used as the NAK back-off deadline of new placeholders.
	NakBackoff time.Duration

	// Trail advertised in packets built by the fixture.
	TxwTrail psqn.Sqn
}

// NewFixture returns a Fixture wrapping a new window built from cfg.
// It fails the test if cfg is invalid.
func NewFixture(t *testing.T, cfg prxw.Config) *Fixture {
	t.Helper()

	w, err := prxw.New(ptest.NewLogger(t), cfg)
	require.NoError(t, err)

	return &Fixture{
		W: w,

		Now:        time.Unix(1_700_000_000, 0),
		NakBackoff: 50 * time.Millisecond,
	}
}

// Advance moves the fixture clock forward.
func (f *Fixture) Advance(d time.Duration) {
	f.Now = f.Now.Add(d)
}

// Packet builds an unfragmented ODATA packet.
func (f *Fixture) Packet(t *testing.T, sqn psqn.Sqn, payload []byte) *pskb.Buffer {
	t.Helper()

	return Parse(t, pskb.AppendData(nil, pskb.Header{
		Sqn:   sqn,
		Trail: f.TxwTrail,
	}, payload))
}

// Fragments splits apdu into ODATA packets of at most tpduSize payload bytes,
// starting at sequence number first.
func (f *Fixture) Fragments(t *testing.T, first psqn.Sqn, apdu []byte, tpduSize int) []*pskb.Buffer {
	t.Helper()

	var out []*pskb.Buffer
	for off := 0; off < len(apdu); off += tpduSize {
		end := min(off+tpduSize, len(apdu))
		sqn := first.Plus(len(out))
		out = append(out, Parse(t, pskb.AppendData(nil, pskb.Header{
			Sqn:   sqn,
			Trail: f.TxwTrail,
			Fragment: &pskb.FragmentOption{
				FirstSqn:   first,
				Offset:     uint32(off),
				APDULength: uint32(len(apdu)),
			},
		}, apdu[off:end])))
	}
	return out
}

// Add admits skb at the fixture's current time
// and fails the test on an invariant violation.
func (f *Fixture) Add(t *testing.T, skb *pskb.Buffer) prxw.Result {
	t.Helper()

	res, err := f.W.Add(skb, f.Now, f.Now.Add(f.NakBackoff))
	require.NoError(t, err)
	return res
}

// Read reads every available APDU, releasing committed packets between reads,
// until the window stops making progress.
func (f *Fixture) Read(t *testing.T) []prxw.APDU {
	t.Helper()

	var out []prxw.APDU
	for {
		before := f.W.Stats()
		n := len(out)

		var err error
		out, err = f.W.Read(out)
		require.NoError(t, err)
		require.NoError(t, f.W.RemoveCommit())

		after := f.W.Stats()
		if len(out) == n && before == after {
			return out
		}
	}
}

// RequireInvariants fails the test if the window is inconsistent.
func (f *Fixture) RequireInvariants(t *testing.T) {
	t.Helper()

	require.NoError(t, f.W.CheckInvariants())
}

// Parse parses raw and fails the test on error.
func Parse(t *testing.T, raw []byte) *pskb.Buffer {
	t.Helper()

	b, err := pskb.Parse(raw)
	require.NoError(t, err)
	return b
}
