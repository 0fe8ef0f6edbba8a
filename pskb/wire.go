package pskb

import (
	"encoding/binary"
	"fmt"

	"github.com/gordian-engine/pgm/psqn"
)

// Packet types carrying data.
const (
	TypeODATA byte = 0x04
	TypeRDATA byte = 0x05
)

// Bits of the header options field.
const (
	OptPresent   byte = 0x01
	OptNetwork   byte = 0x02
	OptEncoded   byte = 0x08
	OptVarPktLen byte = 0x40
	OptParity    byte = 0x80
)

// Option extension types.
const (
	optLength   byte = 0x00
	optFragment byte = 0x01

	// Set on the type byte of the final option.
	optEnd byte = 0x80
	// Mask for the type, ignoring the end marker.
	optMask byte = 0x7F
)

const (
	// Common PGM header:
	//   - 2-byte source port
	//   - 2-byte destination port
	//   - 1-byte type
	//   - 1-byte options
	//   - 2-byte checksum
	//   - 6-byte global source ID
	//   - 2-byte TSDU length
	headerLen = 16

	// ODATA and RDATA append the data sequence number and trail.
	dataHeaderLen = headerLen + 8

	optLengthLen   = 4
	optFragmentLen = 16
)

// GSI is the global source identifier carried in every PGM header.
type GSI [6]byte

// FragmentOption is the content of OPT_FRAGMENT.
type FragmentOption struct {
	// Sequence number of the first fragment of the APDU.
	FirstSqn psqn.Sqn

	// Byte offset of this fragment within the APDU.
	Offset uint32

	// Total length of the APDU.
	APDULength uint32
}

// MalformedPacketError is returned from [Parse]
// when the raw bytes cannot be a data packet.
type MalformedPacketError struct {
	Reason string
}

func (e MalformedPacketError) Error() string {
	return "malformed PGM data packet: " + e.Reason
}

// Header describes a data packet for [AppendData].
type Header struct {
	SourcePort, DestPort uint16
	Type                 byte
	GSI                  GSI

	Sqn, Trail psqn.Sqn

	// Set when the packet carries parity rather than original data.
	Parity bool

	// Fragment is nil for an APDU that fits in a single packet.
	Fragment *FragmentOption
}

// AppendData appends the wire encoding of a data packet
// with the given header and payload to dst.
//
// The checksum field is left as zero.
func AppendData(dst []byte, h Header, payload []byte) []byte {
	typ := h.Type
	if typ == 0 {
		typ = TypeODATA
	}

	var opts byte
	if h.Parity {
		opts |= OptParity
	}
	if h.Fragment != nil {
		opts |= OptPresent
	}

	var b [dataHeaderLen]byte
	binary.BigEndian.PutUint16(b[0:], h.SourcePort)
	binary.BigEndian.PutUint16(b[2:], h.DestPort)
	b[4] = typ
	b[5] = opts
	copy(b[8:14], h.GSI[:])
	binary.BigEndian.PutUint16(b[14:], uint16(len(payload)))
	binary.BigEndian.PutUint32(b[16:], h.Sqn.Uint32())
	binary.BigEndian.PutUint32(b[20:], h.Trail.Uint32())
	dst = append(dst, b[:]...)

	if h.Fragment != nil {
		var o [optLengthLen + optFragmentLen]byte
		o[0] = optLength
		o[1] = optLengthLen
		binary.BigEndian.PutUint16(o[2:], optLengthLen+optFragmentLen)

		f := o[optLengthLen:]
		f[0] = optFragment | optEnd
		f[1] = optFragmentLen
		binary.BigEndian.PutUint32(f[4:], h.Fragment.FirstSqn.Uint32())
		binary.BigEndian.PutUint32(f[8:], h.Fragment.Offset)
		binary.BigEndian.PutUint32(f[12:], h.Fragment.APDULength)
		dst = append(dst, o[:]...)
	}

	return append(dst, payload...)
}

// Parse interprets raw as an ODATA or RDATA packet
// and returns a new Buffer holding a single reference.
//
// The returned Buffer retains raw, so the caller must not modify it.
// The declared TSDU length is not checked against the payload here;
// that is left to the receive window, which reports a mismatch as malformed.
func Parse(raw []byte) (*Buffer, error) {
	if len(raw) < dataHeaderLen {
		return nil, MalformedPacketError{
			Reason: fmt.Sprintf("length %d shorter than data header length %d", len(raw), dataHeaderLen),
		}
	}

	typ := raw[4]
	if typ != TypeODATA && typ != TypeRDATA {
		return nil, MalformedPacketError{
			Reason: fmt.Sprintf("type 0x%x is not ODATA or RDATA", typ),
		}
	}

	b := &Buffer{
		raw: raw,

		typ:     typ,
		options: raw[5],
		tsduLen: binary.BigEndian.Uint16(raw[14:16]),
		sqn:     psqn.Sqn(binary.BigEndian.Uint32(raw[16:20])),
		trail:   psqn.Sqn(binary.BigEndian.Uint32(raw[20:24])),
	}
	copy(b.gsi[:], raw[8:14])
	b.refs.Store(1)

	off := dataHeaderLen
	if b.options&OptPresent != 0 {
		n, err := b.parseOptions(raw[off:])
		if err != nil {
			return nil, err
		}
		off += n
	}

	b.payload = raw[off:]
	return b, nil
}

// parseOptions parses the option extensions at the start of opts
// and returns the number of bytes they occupy.
func (b *Buffer) parseOptions(opts []byte) (int, error) {
	if len(opts) < optLengthLen {
		return 0, MalformedPacketError{Reason: "truncated OPT_LENGTH"}
	}
	if opts[0]&optMask != optLength || opts[1] != optLengthLen {
		return 0, MalformedPacketError{
			Reason: fmt.Sprintf("first option 0x%x is not OPT_LENGTH", opts[0]),
		}
	}

	total := int(binary.BigEndian.Uint16(opts[2:4]))
	if total < optLengthLen || total > len(opts) {
		return 0, MalformedPacketError{
			Reason: fmt.Sprintf("option total length %d out of range", total),
		}
	}

	for idx := optLengthLen; idx < total; {
		if total-idx < 2 {
			return 0, MalformedPacketError{Reason: "truncated option header"}
		}

		typ, l := opts[idx], int(opts[idx+1])
		if l < 2 || idx+l > total {
			return 0, MalformedPacketError{
				Reason: fmt.Sprintf("option 0x%x length %d out of range", typ, l),
			}
		}

		if typ&optMask == optFragment {
			if l != optFragmentLen {
				return 0, MalformedPacketError{
					Reason: fmt.Sprintf("OPT_FRAGMENT length %d", l),
				}
			}
			o := opts[idx:]
			b.frag = FragmentOption{
				FirstSqn:   psqn.Sqn(binary.BigEndian.Uint32(o[4:8])),
				Offset:     binary.BigEndian.Uint32(o[8:12]),
				APDULength: binary.BigEndian.Uint32(o[12:16]),
			}
			b.hasFrag = true
		}
		// Other options are skipped.

		idx += l
		if typ&optEnd != 0 {
			break
		}
	}

	return total, nil
}
