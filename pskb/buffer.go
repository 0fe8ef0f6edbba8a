package pskb

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gordian-engine/pgm/psqn"
)

// Buffer is a single parsed data packet.
//
// Create a Buffer with [Parse].
// All accessors are safe for concurrent use once the Buffer is constructed,
// but the Buffer's timestamp must only be set by its owner.
type Buffer struct {
	raw     []byte
	payload []byte

	typ     byte
	options byte
	gsi     GSI
	tsduLen uint16

	sqn, trail psqn.Sqn

	frag    FragmentOption
	hasFrag bool

	ts time.Time

	refs atomic.Int32
}

// Sqn returns the data sequence number.
func (b *Buffer) Sqn() psqn.Sqn { return b.sqn }

// Trail returns the transmit window trail advertised by the sender.
func (b *Buffer) Trail() psqn.Sqn { return b.trail }

// Type returns TypeODATA or TypeRDATA.
func (b *Buffer) Type() byte { return b.typ }

// GSI returns the global source identifier of the sender.
func (b *Buffer) GSI() GSI { return b.gsi }

// Len returns the length of the payload actually present.
func (b *Buffer) Len() int { return len(b.payload) }

// TSDULength returns the payload length declared in the header.
func (b *Buffer) TSDULength() int { return int(b.tsduLen) }

// Payload returns the payload bytes.
// The returned slice must not be modified.
func (b *Buffer) Payload() []byte { return b.payload }

// Raw returns the complete packet bytes.
// The returned slice must not be modified.
func (b *Buffer) Raw() []byte { return b.raw }

// IsParity reports whether the packet carries FEC parity.
func (b *Buffer) IsParity() bool { return b.options&OptParity != 0 }

// IsOptionEncoded reports whether the packet's options are parity encoded.
func (b *Buffer) IsOptionEncoded() bool { return b.options&OptEncoded != 0 }

// IsVarPktLen reports whether the sender uses variable packet lengths
// within transmission groups.
func (b *Buffer) IsVarPktLen() bool { return b.options&OptVarPktLen != 0 }

// IsFragment reports whether the packet carries OPT_FRAGMENT.
func (b *Buffer) IsFragment() bool { return b.hasFrag }

// Fragment returns the fragment option.
// The zero value is returned if [*Buffer.IsFragment] is false.
func (b *Buffer) Fragment() FragmentOption { return b.frag }

// APDUFirstSqn returns the first sequence number of the APDU containing b.
func (b *Buffer) APDUFirstSqn() psqn.Sqn {
	if b.hasFrag {
		return b.frag.FirstSqn
	}
	return b.sqn
}

// APDULength returns the total length of the APDU containing b.
func (b *Buffer) APDULength() int {
	if b.hasFrag {
		return int(b.frag.APDULength)
	}
	return len(b.payload)
}

// Timestamp returns the receive time set by the owner.
func (b *Buffer) Timestamp() time.Time { return b.ts }

// SetTimestamp records the receive time.
func (b *Buffer) SetTimestamp(ts time.Time) { b.ts = ts }

// Acquire adds a reference to b and returns b.
func (b *Buffer) Acquire() *Buffer {
	if n := b.refs.Add(1); n <= 1 {
		panic(fmt.Errorf(
			"BUG: acquired released buffer for sequence %s (refs now %d)", b.sqn, n,
		))
	}
	return b
}

// Release drops a reference to b.
// Releasing more references than were held panics.
func (b *Buffer) Release() {
	if n := b.refs.Add(-1); n < 0 {
		panic(fmt.Errorf(
			"BUG: released buffer for sequence %s too many times (refs now %d)", b.sqn, n,
		))
	}
}

// Refs returns the current reference count.
func (b *Buffer) Refs() int { return int(b.refs.Load()) }

// LogValue implements [slog.LogValuer].
func (b *Buffer) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Any("sqn", b.sqn),
		slog.Any("trail", b.trail),
		slog.Int("len", len(b.payload)),
	}
	if b.hasFrag {
		attrs = append(attrs,
			slog.Any("apdu_first", b.frag.FirstSqn),
			slog.Uint64("apdu_len", uint64(b.frag.APDULength)),
		)
	}
	return slog.GroupValue(attrs...)
}
