// Package psqn contains the wrapping sequence number type
// shared by the PGM packages.
//
// Sequence numbers are unsigned 32-bit values on a circle.
// Two values are ordered by their minimal wraparound distance,
// so 0 is "after" 0xFFFFFFFF.
package psqn

import "strconv"

// Sqn is a PGM sequence number.
type Sqn uint32

// Max is the largest sequence number,
// used as the lead of a window that has not yet seen any packets.
const Max Sqn = 0xFFFFFFFF

// HalfSpace is the distance at which two sequence numbers
// can no longer be meaningfully ordered.
const HalfSpace uint32 = 1 << 31

// Lt reports whether s precedes o.
func (s Sqn) Lt(o Sqn) bool { return int32(s-o) < 0 }

// Lte reports whether s precedes or equals o.
func (s Sqn) Lte(o Sqn) bool { return int32(s-o) <= 0 }

// Gt reports whether s follows o.
func (s Sqn) Gt(o Sqn) bool { return int32(s-o) > 0 }

// Gte reports whether s follows or equals o.
func (s Sqn) Gte(o Sqn) bool { return int32(s-o) >= 0 }

// Equal reports whether s and o are the same sequence number.
func (s Sqn) Equal(o Sqn) bool { return s == o }

// Plus returns s advanced by n, which may be negative.
func (s Sqn) Plus(n int) Sqn { return s + Sqn(uint32(n)) }

// Minus returns the forward distance from o to s, modulo 2^32.
func (s Sqn) Minus(o Sqn) uint32 { return uint32(s - o) }

// Uint32 returns s as a plain integer.
func (s Sqn) Uint32() uint32 { return uint32(s) }

func (s Sqn) String() string {
	return strconv.FormatUint(uint64(s), 10)
}
