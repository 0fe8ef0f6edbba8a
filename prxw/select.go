package prxw

import (
	"github.com/bits-and-blooms/bitset"
	"github.com/gordian-engine/pgm/psqn"
)

// Select returns a bitset over the tracked sequence numbers,
// with bit i set if trail+i is in one of the given states.
// The returned base is the trail.
//
// A NAK generator would typically select [StateBackOff]
// to build a NAK list, and tests use it to inspect the window.
// A broken window selects nothing.
func (w *Window) Select(states ...PacketState) (base psqn.Sqn, bs *bitset.BitSet) {
	if w.broken != nil {
		return w.trail, bitset.MustNew(0)
	}

	var want uint16
	for _, s := range states {
		want |= 1 << s
	}

	n := w.length()
	bs = bitset.MustNew(uint(n))
	for i := range n {
		e := w.peek(w.trail.Plus(int(i)))
		if want&(1<<e.state) != 0 {
			bs.Set(uint(i))
		}
	}
	return w.trail, bs
}

// TransmissionGroup describes the members of one transmission group
// currently held in the window.
type TransmissionGroup struct {
	// First sequence number of the group.
	First psqn.Sqn

	// Bit i is set if First+i holds original data,
	// delivered or not.
	Have *bitset.BitSet

	// False if any member after the first
	// was first tracked as a placeholder.
	Contiguous bool
}

// TransmissionGroup returns the transmission group containing sqn.
// The boolean result is false if the group's first sequence number
// is no longer in the window.
//
// Without transmission groups, every group has a single member.
// A broken window reports no groups.
func (w *Window) TransmissionGroup(sqn psqn.Sqn) (TransmissionGroup, bool) {
	if w.broken != nil {
		return TransmissionGroup{}, false
	}

	first := w.transmissionGroupSqn(sqn)
	if w.isTgSqnLost(first) {
		return TransmissionGroup{}, false
	}

	fe := w.peek(first)
	if fe == nil {
		return TransmissionGroup{}, false
	}

	size := w.transmissionGroupSize()
	tg := TransmissionGroup{
		First:      first,
		Have:       bitset.MustNew(uint(size)),
		Contiguous: fe.contiguous,
	}
	for i, sqn := uint(0), first; ; i, sqn = i+1, sqn.Plus(1) {
		e := w.peek(sqn)
		if e == nil {
			break
		}
		if e.state == StateHaveData || e.state == StateCommitData {
			tg.Have.Set(i)
		}
		if w.isLastOfTransmissionGroup(sqn) {
			break
		}
	}
	return tg, true
}
