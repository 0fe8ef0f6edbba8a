package prxw

import (
	"time"

	"github.com/gordian-engine/pgm/pskb"
	"github.com/gordian-engine/pgm/psqn"
)

// Add admits an ODATA or RDATA packet.
//
// The now argument is the receive time,
// and nakRbExpiry is the NAK back-off deadline
// assigned to any placeholders created for missing sequence numbers.
//
// If the returned Result is [Result.Consumed],
// the window owns the caller's reference to skb.
// Otherwise the caller retains it.
//
// A non-nil error is always an [*InvariantViolationError].
func (w *Window) Add(skb *pskb.Buffer, now, nakRbExpiry time.Time) (_ Result, err error) {
	if w.broken != nil {
		return 0, w.broken
	}
	defer w.guard(&err)

	if skb.Len() != skb.TSDULength() {
		w.log.Debug(
			"Dropping packet whose length does not match TSDU length",
			"skb", skb, "tsdu_len", skb.TSDULength(),
		)
		return ResultMalformed, nil
	}

	// Protocol sanity check: the trail must be within reach of the sequence.
	if d := skb.Sqn().Minus(skb.Trail()); d >= horizon {
		w.log.Debug(
			"Dropping packet outside window horizon",
			"skb", skb, "distance", d,
		)
		return ResultBounds, nil
	}

	if skb.IsParity() {
		w.log.Debug("Dropping unsupported parity packet", "skb", skb)
		return ResultMalformed, nil
	}

	if skb.IsFragment() && !w.isValidFragment(skb) {
		return ResultMalformed, nil
	}

	skb.SetTimestamp(now)

	if !w.isDefined {
		w.define(skb.Sqn().Plus(-1))
	} else {
		w.updateTrail(skb.Trail())
	}

	sqn := skb.Sqn()
	if sqn.Lt(w.commitLead) {
		if sqn.Gte(w.trail) {
			w.log.Debug("Duplicate packet from window", "sqn", sqn)
			return ResultDuplicate, nil
		}
		w.log.Debug("Duplicate packet before window", "sqn", sqn, "trail", w.trail)
		return ResultBounds, nil
	}

	w.log.Debug("Adding packet", "skb", skb, "window", w)

	var res Result
	switch {
	case sqn.Lte(w.lead):
		res = w.insert(skb)
	case sqn == w.lead.Plus(1):
		res = w.append(skb, now)
	default:
		res = w.addPlaceholderRange(sqn, now, nakRbExpiry)
		if res == ResultAppended {
			res = w.append(skb, now)
			if res == ResultAppended {
				res = ResultMissing
			}
		}
	}

	if res.Consumed() {
		w.hasEvent.Store(true)
	}
	return res, nil
}

func (w *Window) isValidFragment(skb *pskb.Buffer) bool {
	f := skb.Fragment()
	if int(f.APDULength) == skb.Len() {
		// Permitted, if wasteful.
		w.log.Debug("Fragmented APDU contains only one fragment", "skb", skb)
	}
	if int(f.APDULength) < skb.Len() {
		w.log.Debug("Dropping fragment longer than its APDU", "skb", skb)
		return false
	}
	if f.FirstSqn.Gt(skb.Sqn()) {
		w.log.Debug("Dropping fragment preceding its first fragment", "skb", skb)
		return false
	}
	if f.APDULength > MaxAPDU {
		w.log.Debug("Dropping fragment of oversized APDU", "skb", skb)
		return false
	}
	return true
}

// Variable packet lengths and encoded options only matter to FEC decoding,
// which is not available, so both are always valid.
func (w *Window) isInvalidVarPktLen(*pskb.Buffer) bool     { return false }
func (w *Window) isInvalidPayloadOption(*pskb.Buffer) bool { return false }

// isApduLost reports whether skb belongs to an APDU
// whose first fragment is already lost or no longer in the window.
func (w *Window) isApduLost(skb *pskb.Buffer) bool {
	if !skb.IsFragment() {
		return false
	}

	first := skb.Fragment().FirstSqn
	if first == skb.Sqn() {
		return false
	}

	fe := w.peek(first)
	if fe == nil {
		return true
	}
	return fe.state == StateLostData
}

// insert fills the tracked slot for skb's sequence number.
// The caller has checked that the sequence is in [commitLead, lead].
func (w *Window) insert(skb *pskb.Buffer) Result {
	if w.isInvalidVarPktLen(skb) || w.isInvalidPayloadOption(skb) {
		w.log.Debug("Dropping invalid packet", "skb", skb)
		return ResultMalformed
	}

	if skb.IsParity() {
		return ResultMalformed
	}

	sqn := skb.Sqn()
	e := w.peek(sqn)
	if e == nil {
		violate("insert of sequence %s outside window %s", sqn, w)
	}
	if e.state == StateHaveData {
		return ResultDuplicate
	}

	if w.isApduLost(skb) {
		w.log.Debug("APDU already declared lost", "skb", skb)
		if e.state != StateLostData {
			w.markLost(sqn)
		}
		return ResultBounds
	}

	switch e.state {
	case StateBackOff, StateWaitNCF, StateWaitData, StateLostData:
		// Expected placeholder states.
	case StateHaveParity:
		w.shuffleParity(e)
	default:
		violate("insert of sequence %s found slot in state %s", sqn, e.state)
	}

	w.retire(e)

	ne := &entry{
		sqn:        sqn,
		skb:        skb,
		ts:         skb.Timestamp(),
		contiguous: e.contiguous,
	}
	w.ring[w.index(sqn)] = ne
	w.setPacketState(ne, StateHaveData)
	w.size += skb.Len()

	return ResultInserted
}

// shuffleParity would move a parity packet aside
// so the original data can take its slot.
// Parity packets are not admitted yet.
func (w *Window) shuffleParity(*entry) {}

// append adds skb at lead+1.
func (w *Window) append(skb *pskb.Buffer, now time.Time) Result {
	if w.isInvalidVarPktLen(skb) || w.isInvalidPayloadOption(skb) {
		w.log.Debug("Dropping invalid packet", "skb", skb)
		return ResultMalformed
	}

	if skb.IsParity() {
		return ResultMalformed
	}

	if w.isFull() {
		if !w.isCommitEmpty() {
			w.log.Debug("Receive window full with commit data", "sqn", skb.Sqn())
			return ResultBounds
		}
		w.log.Debug("Receive window full on new data, pulling trail", "sqn", skb.Sqn())
		w.removeTrail()
	}

	w.lead = w.lead.Plus(1)

	if w.isApduLost(skb) {
		e := &entry{
			sqn:        w.lead,
			ts:         now,
			contiguous: true,
		}
		w.store(e)
		w.setPacketState(e, StateLostData)

		w.log.Debug("APDU already declared lost, ignoring packet", "skb", skb)
		return ResultBounds
	}

	e := &entry{
		sqn:        w.lead,
		skb:        skb,
		ts:         now,
		contiguous: true,
	}
	w.store(e)
	w.setPacketState(e, StateHaveData)
	w.size += skb.Len()

	return ResultAppended
}

// addPlaceholder adds one placeholder at the lead
// for a sequence number known to be missing.
func (w *Window) addPlaceholder(now, nakRbExpiry time.Time) {
	w.lead = w.lead.Plus(1)

	e := &entry{
		sqn: w.lead,
		ts:  now,

		nakBackoffExpiry: nakRbExpiry,

		contiguous: true,
	}

	if !w.isFirstOfTransmissionGroup(w.lead) {
		if first := w.peek(w.transmissionGroupSqn(w.lead)); first != nil {
			first.contiguous = false
		}
	}

	w.store(e)
	w.setPacketState(e, StateBackOff)

	w.log.Debug("Added placeholder", "sqn", w.lead, "idx", w.index(w.lead))
}

// addPlaceholderRange adds placeholders from lead+1 through sqn-1.
//
// It returns [ResultBounds] if outstanding commit data
// prevents the window from reaching sqn,
// in which case the lead is advanced as far as the commit data allows.
// Otherwise it returns [ResultAppended].
func (w *Window) addPlaceholderRange(sqn psqn.Sqn, now, nakRbExpiry time.Time) Result {
	if !w.isCommitEmpty() && sqn.Plus(1).Minus(w.trail) >= w.alloc {
		w.updateLead(sqn, now, nakRbExpiry)
		return ResultBounds
	}

	if w.isFull() {
		w.log.Debug("Receive window full on placeholder sequence")
		w.removeTrail()
	}

	for w.lead.Plus(1) != sqn {
		w.addPlaceholder(now, nakRbExpiry)
		if w.isFull() {
			w.log.Debug("Receive window full on placeholder sequence")
			w.removeTrail()
		}
	}

	return ResultAppended
}
