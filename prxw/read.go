package prxw

import (
	"github.com/gordian-engine/pgm/pskb"
	"github.com/gordian-engine/pgm/psqn"
)

// APDU is one application data unit released by [*Window.Read].
type APDU struct {
	// Packets of the APDU in sequence order.
	// The window acquired a reference to each on behalf of the caller;
	// call [APDU.Release] when finished with them.
	Fragments []*pskb.Buffer

	// Sum of the fragment payload lengths.
	Length int
}

// FirstSqn returns the sequence number of the first fragment.
func (a APDU) FirstSqn() psqn.Sqn {
	return a.Fragments[0].Sqn()
}

// Bytes returns a new slice holding the concatenated payloads.
func (a APDU) Bytes() []byte {
	out := make([]byte, 0, a.Length)
	for _, f := range a.Fragments {
		out = append(out, f.Payload()...)
	}
	return out
}

// Release drops the caller's references to the fragments.
func (a APDU) Release() {
	for _, f := range a.Fragments {
		f.Release()
	}
}

// Read appends the complete APDUs at the commit boundary to dst
// and returns the extended slice.
// Nothing was read if the returned slice has the same length as dst.
//
// A lost sequence number at the commit boundary is purged
// when no commit data remains, so a caller seeing nothing read
// after [*Window.RemoveCommit] should call Read again
// until it stops making progress.
//
// A non-nil error is always an [*InvariantViolationError].
func (w *Window) Read(dst []APDU) (_ []APDU, err error) {
	if w.broken != nil {
		return dst, w.broken
	}
	defer w.guard(&err)

	if w.isIncomingEmpty() {
		return dst, nil
	}

	e := w.peek(w.commitLead)
	if e == nil {
		violate("commit lead %s not tracked in %s", w.commitLead, w)
	}

	switch e.state {
	case StateHaveData:
		dst = w.incomingRead(dst)

	case StateLostData:
		// Do not purge a lost sequence that is still inside the commit window's group.
		if w.isCommitEmpty() {
			w.log.Debug("Removing lost trail from window", "sqn", e.sqn)
			w.removeTrail()
		} else {
			w.log.Debug("Locking trail at commit window", "sqn", e.sqn)
		}

	case StateBackOff, StateWaitNCF, StateWaitData, StateHaveParity:
		// Still pending.

	default:
		violate("read at commit lead %s found state %s", e.sqn, e.state)
	}

	return dst, nil
}

// incomingRead delivers contiguous complete APDUs from the commit lead.
func (w *Window) incomingRead(dst []APDU) []APDU {
	bytesRead := 0
	dataRead := 0

	for !w.isIncomingEmpty() {
		e := w.peek(w.commitLead)
		if e.state != StateHaveData {
			// Lost or pending; Read handles the commit lead on the next call.
			break
		}

		first := e.skb.APDUFirstSqn()
		if w.isApduLost(e.skb) || first.Lt(w.commitLead) {
			// The first fragment left the window or was delivered
			// before this one was read.
			w.markLost(e.sqn)
			break
		}
		if !w.isApduComplete(first) {
			break
		}

		a := w.incomingReadApdu()
		dst = append(dst, a)
		bytesRead += a.Length
		dataRead++
	}

	w.bytesDelivered += uint64(bytesRead)
	w.messagesDelivered += uint64(dataRead)

	if dataRead > 0 {
		w.log.Debug("Read from receive window", "apdus", dataRead, "bytes", bytesRead)
	}

	return dst
}

// isApduComplete reports whether every packet of the APDU
// starting at first has arrived.
//
// An APDU that breaks the fragment rules is marked lost.
// Running out of tracked packets only means the APDU is still pending.
func (w *Window) isApduComplete(first psqn.Sqn) bool {
	fe := w.peek(first)
	if fe == nil || fe.skb == nil {
		return false
	}

	apduSize := fe.skb.APDULength()

	// Protocol sanity check: maximum length.
	if apduSize > MaxAPDU {
		w.markLost(first)
		return false
	}

	contiguousTPDUs := 0
	contiguousSize := 0

	for sqn := first; ; sqn = sqn.Plus(1) {
		e := w.peek(sqn)
		if e == nil {
			break
		}

		if e.state != StateHaveData {
			return false
		}

		if !e.skb.IsFragment() {
			// Single packet APDU, already complete.
			if sqn == first {
				return true
			}
			// Protocol sanity check: an unfragmented packet inside a fragmented APDU.
			w.markLost(first)
			return false
		}

		f := e.skb.Fragment()

		// Protocol sanity check: matching first sequence reference.
		if f.FirstSqn != first {
			w.markLost(first)
			return false
		}

		// Protocol sanity check: matching APDU length.
		if int(f.APDULength) != apduSize {
			w.markLost(first)
			return false
		}

		// Protocol sanity check: maximum number of fragments per APDU.
		contiguousTPDUs++
		if contiguousTPDUs > MaxFragments {
			w.markLost(first)
			return false
		}

		contiguousSize += e.skb.Len()
		if contiguousSize == apduSize {
			return true
		}
		if contiguousSize > apduSize {
			w.markLost(first)
			return false
		}
	}

	// Pending.
	return false
}

// incomingReadApdu commits the complete APDU at the commit lead.
func (w *Window) incomingReadApdu() APDU {
	e := w.peek(w.commitLead)
	apduLen := e.skb.APDULength()

	var a APDU
	for {
		w.setPacketState(e, StateCommitData)
		a.Fragments = append(a.Fragments, e.skb.Acquire())
		a.Length += e.skb.Len()
		w.commitLead = w.commitLead.Plus(1)

		if a.Length >= apduLen {
			return a
		}

		e = w.peek(w.commitLead)
		if e == nil || e.skb == nil {
			violate("APDU at %s ran out of data at %s", a.FirstSqn(), w.commitLead)
		}
	}
}
