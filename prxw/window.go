package prxw

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gordian-engine/pgm/psqn"
)

// Sequence numbers further than this from a reference point
// are treated as protocol violations rather than advances.
const horizon = psqn.HalfSpace - 2

// Window is the receive window for a single sender.
//
// Create a Window with [New].
type Window struct {
	log *slog.Logger

	maxTPDU int

	alloc uint32
	ring  []*entry

	lead, trail psqn.Sqn

	// Boundary between delivered and incoming sequence numbers.
	commitLead psqn.Sqn

	// Trail advertised by the sender,
	// and the first trail once the window was defined.
	rxwTrail, rxwTrailInit psqn.Sqn

	// NAKs are constrained until the advertised trail
	// moves past the trail at definition.
	isConstrained bool
	isDefined     bool

	hasEvent atomic.Bool

	// Nil when transmission groups are disabled.
	fec        *fecScheme
	tgSqnShift uint

	backoff, waitNCF, waitData Queue

	lostCount      int
	fragmentCount  int
	parityCount    int
	committedCount int

	cumulativeLosses  uint64
	bytesDelivered    uint64
	messagesDelivered uint64

	// Total payload bytes held.
	size int

	stats atomic.Pointer[Stats]

	// Set once an invariant violation is detected.
	broken *InvariantViolationError
}

// New returns a new, undefined Window with the given configuration.
// The window is defined by the first packet passed to [*Window.Add]
// or the first call to [*Window.Update].
func New(log *slog.Logger, cfg Config) (*Window, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid receive window config: %w", err)
	}

	alloc := uint32(cfg.capacity())

	w := &Window{
		log: log,

		maxTPDU: cfg.MaxTPDU,

		alloc: alloc,
		ring:  make([]*entry, alloc),

		// Empty state: the lead sits one behind the trail.
		lead:  psqn.Max,
		trail: psqn.Max.Plus(1),

		backoff:  Queue{state: StateBackOff},
		waitNCF:  Queue{state: StateWaitNCF},
		waitData: Queue{state: StateWaitData},
	}

	if cfg.TransmissionGroupSize > 1 {
		fec, err := newFECScheme(cfg.TransmissionGroupSize, cfg.ParityCount)
		if err != nil {
			return nil, fmt.Errorf("invalid receive window FEC config: %w", err)
		}
		w.fec = fec
		w.tgSqnShift = fec.shift
	}

	w.publish()

	log.Debug(
		"Allocated receive window",
		"sqns", alloc,
		"max_tpdu", cfg.MaxTPDU,
		"fec", w.fec != nil,
	)

	return w, nil
}

func (w *Window) define(lead psqn.Sqn) {
	w.lead = lead
	w.trail = w.lead.Plus(1)
	w.rxwTrailInit = w.trail
	w.rxwTrail = w.rxwTrailInit
	w.commitLead = w.rxwTrail
	w.isConstrained = true
	w.isDefined = true

	w.log.Debug("Defined receive window", "window", w)
}

func (w *Window) index(sqn psqn.Sqn) uint32 {
	return sqn.Uint32() % w.alloc
}

// peek returns the entry for sqn,
// or nil if sqn is outside [trail, lead].
func (w *Window) peek(sqn psqn.Sqn) *entry {
	if w.isEmpty() {
		return nil
	}
	if sqn.Lt(w.trail) || sqn.Gt(w.lead) {
		return nil
	}

	e := w.ring[w.index(sqn)]
	if e == nil || e.sqn != sqn {
		violate("slot for tracked sequence %s holds %v", sqn, e)
	}
	return e
}

// store places a new entry in its free slot.
func (w *Window) store(e *entry) {
	idx := w.index(e.sqn)
	if prev := w.ring[idx]; prev != nil {
		violate("sequence %s assigned to slot %d still holding sequence %s", e.sqn, idx, prev.sqn)
	}
	w.ring[idx] = e
}

// retire clears e's state and drops the window's reference to its buffer.
// The caller is responsible for the slot.
func (w *Window) retire(e *entry) {
	w.clearPacketState(e)
	w.size -= e.length()
	if e.skb != nil {
		e.skb.Release()
		e.skb = nil
	}
}

func (w *Window) length() uint32       { return w.lead.Plus(1).Minus(w.trail) }
func (w *Window) isEmpty() bool        { return w.length() == 0 }
func (w *Window) isFull() bool         { return w.length() == w.alloc }
func (w *Window) commitLength() uint32 { return w.commitLead.Minus(w.trail) }
func (w *Window) isCommitEmpty() bool  { return w.commitLength() == 0 }

func (w *Window) incomingLength() uint32 { return w.lead.Plus(1).Minus(w.commitLead) }
func (w *Window) isIncomingEmpty() bool  { return w.incomingLength() == 0 }

// BackoffQueue returns the schedule of placeholders
// waiting for their NAK back-off to expire.
func (w *Window) BackoffQueue() *Queue { return &w.backoff }

// WaitNCFQueue returns the schedule of sequence numbers
// waiting for a NAK confirmation.
func (w *Window) WaitNCFQueue() *Queue { return &w.waitNCF }

// WaitDataQueue returns the schedule of sequence numbers
// waiting for repair data.
func (w *Window) WaitDataQueue() *Queue { return &w.waitData }

// HasEvent reports whether data arrived or loss was detected
// since the last call to [*Window.ClearEvent].
// It is safe to call from any goroutine.
func (w *Window) HasEvent() bool { return w.hasEvent.Load() }

// ClearEvent resets the flag reported by [*Window.HasEvent].
func (w *Window) ClearEvent() { w.hasEvent.Store(false) }

// HasCommitData reports whether delivered packets
// are still retained in the window.
func (w *Window) HasCommitData() bool { return w.committedCount > 0 }

// CumulativeLosses returns the number of sequence numbers
// that were lost since the window was created.
func (w *Window) CumulativeLosses() uint64 { return w.cumulativeLosses }

// FECAvailable reports whether the window was configured
// with transmission groups.
func (w *Window) FECAvailable() bool { return w.fec != nil }

// State returns the state of sqn.
// The boolean result is false if sqn is not in the window,
// or if the window is broken.
func (w *Window) State(sqn psqn.Sqn) (PacketState, bool) {
	if w.broken != nil {
		return StateError, false
	}

	e := w.peek(sqn)
	if e == nil {
		return StateError, false
	}
	return e.state, true
}

func (w *Window) String() string {
	return fmt.Sprintf(
		"{lead=%s trail=%s rxw_trail=%s rxw_trail_init=%s commit_lead=%s constrained=%t defined=%t event=%t size=%d}",
		w.lead, w.trail, w.rxwTrail, w.rxwTrailInit, w.commitLead,
		w.isConstrained, w.isDefined, w.hasEvent.Load(), w.size,
	)
}

// LogValue implements [slog.LogValuer].
func (w *Window) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("lead", w.lead),
		slog.Any("trail", w.trail),
		slog.Any("commit_lead", w.commitLead),
		slog.Any("rxw_trail", w.rxwTrail),
		slog.Bool("defined", w.isDefined),
		slog.Bool("constrained", w.isConstrained),
	)
}
