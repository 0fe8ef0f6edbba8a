package prxw

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gordian-engine/pgm/psqn"
)

// Deadline is the head of a [Queue].
type Deadline struct {
	Sqn    psqn.Sqn
	Expiry time.Time
}

// Queue is the schedule of entries in one repair state,
// in the order they entered it.
// Because each state's expiry is computed from a monotonic clock
// at the time of entry, insertion order is also expiry order.
//
// The list itself belongs to the window's owner.
// After every change the owner publishes the head and length,
// so [*Queue.Peek], [*Queue.EarliestExpiry] and [*Queue.Len]
// are safe to call from any goroutine.
// A timer goroutine that finds an expired head
// must ask the owner to move the entry
// (for example with [*Window.SetWaitNCF] or [*Window.MarkLost]);
// it never removes entries itself.
type Queue struct {
	state PacketState

	head, tail *entry
	n          int

	front  atomic.Pointer[Deadline]
	length atomic.Int64
}

func (q *Queue) expiry(e *entry) time.Time {
	switch q.state {
	case StateBackOff:
		return e.nakBackoffExpiry
	case StateWaitNCF:
		return e.nakRepeatExpiry
	case StateWaitData:
		return e.repairDataExpiry
	default:
		panic(fmt.Errorf("BUG: queue has non-repair state %s", q.state))
	}
}

// push appends e to the tail of q.
func (q *Queue) push(e *entry) {
	if e.q != nil {
		violate("sequence %s pushed to %s queue while in %s queue", e.sqn, q.state, e.q.state)
	}

	e.q = q
	e.prev = q.tail
	e.next = nil
	if q.tail == nil {
		q.head = e
	} else {
		q.tail.next = e
	}
	q.tail = e
	q.n++

	q.publish()
}

// remove unlinks e from q in constant time.
func (q *Queue) remove(e *entry) {
	if e.q != q {
		violate("sequence %s removed from %s queue it is not a member of", e.sqn, q.state)
	}

	if e.prev == nil {
		q.head = e.next
	} else {
		e.prev.next = e.next
	}
	if e.next == nil {
		q.tail = e.prev
	} else {
		e.next.prev = e.prev
	}
	e.q, e.prev, e.next = nil, nil, nil
	q.n--

	q.publish()
}

func (q *Queue) publish() {
	q.length.Store(int64(q.n))
	if q.head == nil {
		q.front.Store(nil)
		return
	}
	q.front.Store(&Deadline{Sqn: q.head.sqn, Expiry: q.expiry(q.head)})
}

// Peek returns the entry at the head of q.
// The boolean result is false if q is empty.
func (q *Queue) Peek() (Deadline, bool) {
	d := q.front.Load()
	if d == nil {
		return Deadline{}, false
	}
	return *d, true
}

// EarliestExpiry returns the expiry of the head of q.
// The boolean result is false if q is empty.
func (q *Queue) EarliestExpiry() (time.Time, bool) {
	d, ok := q.Peek()
	return d.Expiry, ok
}

// Len returns the number of entries in q.
func (q *Queue) Len() int {
	return int(q.length.Load())
}

// AppendExpired appends the sequence numbers of entries
// whose expiry is not after now, in queue order, to dst.
//
// Unlike the other Queue methods,
// AppendExpired walks the list and must only be called by the window's owner.
func (q *Queue) AppendExpired(dst []psqn.Sqn, now time.Time) []psqn.Sqn {
	for e := q.head; e != nil; e = e.next {
		if q.expiry(e).After(now) {
			break
		}
		dst = append(dst, e.sqn)
	}
	return dst
}
