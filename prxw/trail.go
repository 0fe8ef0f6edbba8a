package prxw

import (
	"time"

	"github.com/gordian-engine/pgm/psqn"
)

// Update folds in the transmit window advertised by the sender,
// typically from an SPM.
//
// An undefined window is defined from txwTrail and Update returns zero.
// Otherwise Update returns the number of placeholders added
// while advancing the lead towards txwLead,
// each of which is a newly detected loss.
//
// A non-nil error is always an [*InvariantViolationError].
func (w *Window) Update(txwLead, txwTrail psqn.Sqn, now, nakRbExpiry time.Time) (_ int, err error) {
	if w.broken != nil {
		return 0, w.broken
	}
	defer w.guard(&err)

	if !w.isDefined {
		w.define(txwTrail)
		return 0, nil
	}

	w.updateTrail(txwTrail)
	return w.updateLead(txwLead, now, nakRbExpiry), nil
}

func (w *Window) updateTrail(txwTrail psqn.Sqn) {
	if txwTrail.Lte(w.rxwTrail) {
		return
	}

	// Protocol sanity check: advertised trail jumps too far ahead.
	if txwTrail.Minus(w.rxwTrail) > horizon {
		w.log.Debug(
			"Ignoring advertised trail beyond horizon",
			"txw_trail", txwTrail, "rxw_trail", w.rxwTrail,
		)
		return
	}

	if w.isConstrained {
		if !txwTrail.Gt(w.rxwTrailInit) {
			return
		}
		w.isConstrained = false
	}

	w.rxwTrail = txwTrail

	if w.isEmpty() {
		// Nothing to purge, so jump straight to the advertised trail.
		// The trail may already be ahead of it after evictions.
		if !w.rxwTrail.Gt(w.trail) {
			return
		}
		distance := w.rxwTrail.Minus(w.trail)
		w.trail = w.trail.Plus(int(distance))
		w.commitLead = w.trail
		w.lead = w.lead.Plus(int(distance))

		w.cumulativeLosses += uint64(distance)
		w.log.Debug("Advanced empty window to advertised trail", "distance", distance, "window", w)
		return
	}

	// Anything incoming before the advertised trail
	// can no longer be repaired by the sender.
	for sqn := w.commitLead; w.rxwTrail.Gt(sqn) && w.lead.Gte(sqn); sqn = sqn.Plus(1) {
		e := w.peek(sqn)
		switch e.state {
		case StateHaveData, StateHaveParity, StateLostData:
			// Keep.
		case StateError:
			violate("purge of sequence %s found slot in state %s", sqn, e.state)
		default:
			w.log.Debug("Purging unrecoverable sequence", "sqn", sqn)
			w.markLost(sqn)
		}
	}
}

// updateLead adds placeholders up to txwLead,
// capped by commit data still held in the window,
// and returns the number of placeholders added.
func (w *Window) updateLead(txwLead psqn.Sqn, now, nakRbExpiry time.Time) int {
	if txwLead.Lte(w.lead) {
		return 0
	}

	lead := txwLead
	if !w.isCommitEmpty() && txwLead.Minus(w.trail) >= w.alloc {
		// Committed packets constrain the lead until they are released.
		lead = w.trail.Plus(int(w.alloc) - 1)
		if lead == w.lead {
			return 0
		}
	}

	lost := 0
	for w.lead != lead {
		// Slow consumer or fast producer.
		if w.isFull() {
			w.log.Debug("Receive window full on lead advancement")
			w.removeTrail()
		}
		w.addPlaceholder(now, nakRbExpiry)
		lost++
	}

	return lost
}

// removeTrail evicts the entry at the trail
// and returns one if it had not been delivered, zero otherwise.
func (w *Window) removeTrail() int {
	e := w.peek(w.trail)
	if e == nil {
		violate("eviction from empty window %s", w)
	}

	w.retire(e)
	w.ring[w.index(e.sqn)] = nil

	dataLoss := w.trail == w.commitLead
	w.trail = w.trail.Plus(1)
	if !dataLoss {
		return 0
	}

	w.commitLead = w.commitLead.Plus(1)
	w.cumulativeLosses++
	w.hasEvent.Store(true)

	w.log.Info(
		"Data loss due to pulled trailing edge",
		"sqn", e.sqn, "have_data", w.fragmentCount,
	)
	return 1
}

// RemoveCommit releases delivered packets
// that are not in the commit lead's transmission group.
// Without transmission groups, every delivered packet is released.
//
// Call RemoveCommit after consuming the results of [*Window.Read];
// held commit data stops a lost sequence from being purged
// and limits how far the lead may advance.
func (w *Window) RemoveCommit() (err error) {
	if w.broken != nil {
		return w.broken
	}
	defer w.guard(&err)

	tgCommitLead := w.transmissionGroupSqn(w.commitLead)
	for !w.isCommitEmpty() && tgCommitLead != w.transmissionGroupSqn(w.trail) {
		w.removeTrail()
	}
	return nil
}
