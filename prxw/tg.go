package prxw

import "github.com/gordian-engine/pgm/psqn"

// transmissionGroupSqn returns the first sequence number
// of the transmission group containing sqn.
func (w *Window) transmissionGroupSqn(sqn psqn.Sqn) psqn.Sqn {
	return sqn & w.tgSqnMask()
}

// packetSqn returns the position of sqn within its transmission group.
func (w *Window) packetSqn(sqn psqn.Sqn) uint32 {
	return uint32(sqn &^ w.tgSqnMask())
}

func (w *Window) tgSqnMask() psqn.Sqn {
	return psqn.Max << w.tgSqnShift
}

func (w *Window) isFirstOfTransmissionGroup(sqn psqn.Sqn) bool {
	return w.packetSqn(sqn) == 0
}

func (w *Window) isLastOfTransmissionGroup(sqn psqn.Sqn) bool {
	return w.packetSqn(sqn) == uint32(w.transmissionGroupSize()-1)
}

// isTgSqnLost reports whether the transmission group starting at tgSqn
// has already left the window.
func (w *Window) isTgSqnLost(tgSqn psqn.Sqn) bool {
	return w.isEmpty() || tgSqn.Lt(w.trail)
}

func (w *Window) transmissionGroupSize() int {
	if w.fec == nil {
		return 1
	}
	return w.fec.groupSize
}
