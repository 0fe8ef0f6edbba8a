package prxw

import (
	"errors"
	"fmt"
)

// CheckInvariants walks the whole window
// and reports every inconsistency between its pointers, slots,
// queues and counters.
// It is linear in the window capacity.
func (w *Window) CheckInvariants() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if n := w.length(); n > w.alloc {
		fail("length %d exceeds capacity %d", n, w.alloc)
		// The remaining checks would index garbage.
		return errors.Join(errs...)
	}
	if w.commitLength() > w.length() {
		fail("commit lead %s outside [trail %s, lead+1 %s]", w.commitLead, w.trail, w.lead.Plus(1))
		return errors.Join(errs...)
	}

	var states [StateLostData + 1]int
	size := 0
	tracked := make(map[*entry]bool, w.length())

	for i := range w.length() {
		sqn := w.trail.Plus(int(i))
		e := w.ring[w.index(sqn)]
		if e == nil {
			fail("tracked sequence %s has no slot entry", sqn)
			continue
		}
		if e.sqn != sqn {
			fail("slot for sequence %s holds sequence %s", sqn, e.sqn)
			continue
		}
		tracked[e] = true

		if e.state > StateLostData {
			fail("sequence %s in unknown state %s", sqn, e.state)
			continue
		}
		states[e.state]++
		size += e.length()

		isCommitted := i < w.commitLength()
		switch {
		case e.state == StateError:
			fail("sequence %s left in error state", sqn)
		case isCommitted && e.state != StateCommitData:
			fail("delivered sequence %s in state %s", sqn, e.state)
		case !isCommitted && e.state == StateCommitData:
			fail("incoming sequence %s in commit state", sqn)
		}

		var wantQ *Queue
		switch e.state {
		case StateBackOff:
			wantQ = &w.backoff
		case StateWaitNCF:
			wantQ = &w.waitNCF
		case StateWaitData:
			wantQ = &w.waitData
		}
		if e.q != wantQ {
			fail("sequence %s in state %s has wrong queue membership", sqn, e.state)
		}

		if (e.state == StateHaveData || e.state == StateCommitData) && e.skb == nil {
			fail("sequence %s in state %s has no packet", sqn, e.state)
		}
	}

	for i, e := range w.ring {
		if e != nil && !tracked[e] {
			fail("slot %d holds untracked sequence %s", i, e.sqn)
		}
	}

	if size != w.size {
		fail("size %d does not match held payload %d", w.size, size)
	}

	for _, c := range []struct {
		name    string
		counter int
		state   PacketState
	}{
		{"have-data", w.fragmentCount, StateHaveData},
		{"parity", w.parityCount, StateHaveParity},
		{"committed", w.committedCount, StateCommitData},
		{"lost", w.lostCount, StateLostData},
	} {
		if c.counter != states[c.state] {
			fail("%s count %d does not match %d entries", c.name, c.counter, states[c.state])
		}
	}

	for _, q := range []*Queue{&w.backoff, &w.waitNCF, &w.waitData} {
		n := 0
		var prev *entry
		for e := q.head; e != nil; e = e.next {
			n++
			if e.prev != prev {
				fail("%s queue has broken back link at sequence %s", q.state, e.sqn)
			}
			if !tracked[e] {
				fail("%s queue holds untracked sequence %s", q.state, e.sqn)
			}
			prev = e
		}
		if prev != q.tail {
			fail("%s queue tail does not match last entry", q.state)
		}
		if n != q.n || n != states[q.state] || n != q.Len() {
			fail(
				"%s queue length %d, recorded %d, published %d, entries in state %d",
				q.state, n, q.n, q.Len(), states[q.state],
			)
		}
	}

	return errors.Join(errs...)
}
