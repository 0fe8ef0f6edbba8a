package prxw

import "github.com/gordian-engine/pgm/psqn"

// Stats is a snapshot of the window's pointers and counters.
//
// A fresh snapshot is published at the end of every public mutating call,
// so [*Window.Stats] may lag the owner but never observes a half-applied change.
type Stats struct {
	Defined bool

	Lead, Trail, CommitLead, RxwTrail psqn.Sqn

	Capacity       int
	Length         int
	CommitLength   int
	IncomingLength int

	// Payload bytes held.
	Size int

	HaveData  int
	Parity    int
	Committed int
	Lost      int

	BackOff  int
	WaitNCF  int
	WaitData int

	CumulativeLosses  uint64
	BytesDelivered    uint64
	MessagesDelivered uint64
}

// Stats returns the most recently published snapshot.
// It is safe to call from any goroutine.
func (w *Window) Stats() Stats {
	return *w.stats.Load()
}

func (w *Window) publish() {
	w.stats.Store(&Stats{
		Defined: w.isDefined,

		Lead:       w.lead,
		Trail:      w.trail,
		CommitLead: w.commitLead,
		RxwTrail:   w.rxwTrail,

		Capacity:       int(w.alloc),
		Length:         int(w.length()),
		CommitLength:   int(w.commitLength()),
		IncomingLength: int(w.incomingLength()),

		Size: w.size,

		HaveData:  w.fragmentCount,
		Parity:    w.parityCount,
		Committed: w.committedCount,
		Lost:      w.lostCount,

		BackOff:  w.backoff.n,
		WaitNCF:  w.waitNCF.n,
		WaitData: w.waitData.n,

		CumulativeLosses:  w.cumulativeLosses,
		BytesDelivered:    w.bytesDelivered,
		MessagesDelivered: w.messagesDelivered,
	})
}
