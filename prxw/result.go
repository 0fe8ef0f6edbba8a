package prxw

import "strconv"

// Result is the outcome of admitting a packet through [*Window.Add].
type Result uint8

const (
	// Nothing for zero.
	_ Result = iota

	// The packet filled a placeholder.
	ResultInserted

	// The packet advanced the window lead by one.
	ResultAppended

	// The packet advanced the lead past one or more missing sequence numbers,
	// which now have placeholders.
	ResultMissing

	// The packet was already received or delivered.
	ResultDuplicate

	// The packet failed validation.
	ResultMalformed

	// The packet falls outside the window,
	// belongs to an APDU already declared lost,
	// or the window has no room for it.
	ResultBounds
)

// Consumed reports whether the window took ownership
// of the packet's reference.
func (r Result) Consumed() bool {
	return r == ResultInserted || r == ResultAppended || r == ResultMissing
}

func (r Result) String() string {
	switch r {
	case ResultInserted:
		return "inserted"
	case ResultAppended:
		return "appended"
	case ResultMissing:
		return "missing"
	case ResultDuplicate:
		return "duplicate"
	case ResultMalformed:
		return "malformed"
	case ResultBounds:
		return "bounds"
	default:
		return "Result(" + strconv.Itoa(int(r)) + ")"
	}
}
