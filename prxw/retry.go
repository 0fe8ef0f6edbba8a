package prxw

import (
	"time"

	"github.com/gordian-engine/pgm/psqn"
)

// MarkLost declares sqn unrecoverable,
// for example after NAK retries are exhausted.
//
// MarkLost returns false if sqn is not tracked,
// has already been delivered, or is already lost.
func (w *Window) MarkLost(sqn psqn.Sqn) bool {
	if w.broken != nil {
		return false
	}
	var err error
	defer w.guard(&err)

	e := w.peek(sqn)
	if e == nil || e.state == StateCommitData || e.state == StateLostData {
		return false
	}

	w.markLost(sqn)
	return true
}

func (w *Window) markLost(sqn psqn.Sqn) {
	e := w.peek(sqn)
	if e == nil {
		violate("mark lost of untracked sequence %s", sqn)
	}

	w.log.Debug("Marking sequence lost", "sqn", sqn, "from", e.state)
	w.setPacketState(e, StateLostData)
}

// repairEntry returns the entry for sqn
// if it is in one of the three repair states.
func (w *Window) repairEntry(sqn psqn.Sqn) *entry {
	e := w.peek(sqn)
	if e == nil {
		return nil
	}
	switch e.state {
	case StateBackOff, StateWaitNCF, StateWaitData:
		return e
	default:
		return nil
	}
}

// SetBackoff returns sqn to the back-off state with a new NAK back-off deadline,
// after a NAK confirmation or repair data failed to arrive in time.
//
// It returns false if sqn is not waiting for repair.
func (w *Window) SetBackoff(sqn psqn.Sqn, nakRbExpiry time.Time) bool {
	if w.broken != nil {
		return false
	}
	var err error
	defer w.guard(&err)

	e := w.repairEntry(sqn)
	if e == nil {
		return false
	}

	switch e.state {
	case StateWaitNCF:
		e.retries.NCFRetries++
	case StateWaitData:
		e.retries.DataRetries++
	}

	e.nakBackoffExpiry = nakRbExpiry
	w.setPacketState(e, StateBackOff)
	return true
}

// SetWaitNCF records that a NAK was sent for sqn,
// which then waits for a NAK confirmation until nakRptExpiry.
//
// It returns false if sqn is not in the back-off state.
func (w *Window) SetWaitNCF(sqn psqn.Sqn, nakRptExpiry time.Time) bool {
	if w.broken != nil {
		return false
	}
	var err error
	defer w.guard(&err)

	e := w.repairEntry(sqn)
	if e == nil || e.state != StateBackOff {
		return false
	}

	e.retries.NakTransmits++
	e.nakRepeatExpiry = nakRptExpiry
	w.setPacketState(e, StateWaitNCF)
	return true
}

// SetWaitData records that a NAK confirmation for sqn arrived,
// which then waits for repair data until rdataExpiry.
// A repeated confirmation refreshes the deadline.
//
// It returns false if sqn is not waiting for repair.
func (w *Window) SetWaitData(sqn psqn.Sqn, rdataExpiry time.Time) bool {
	if w.broken != nil {
		return false
	}
	var err error
	defer w.guard(&err)

	e := w.repairEntry(sqn)
	if e == nil {
		return false
	}

	e.repairDataExpiry = rdataExpiry
	w.setPacketState(e, StateWaitData)
	return true
}

// Retries returns the recovery attempts recorded for sqn.
// The boolean result is false if sqn is not tracked
// or the window is broken.
func (w *Window) Retries(sqn psqn.Sqn) (Retries, bool) {
	if w.broken != nil {
		return Retries{}, false
	}

	e := w.peek(sqn)
	if e == nil {
		return Retries{}, false
	}
	return e.retries, true
}
