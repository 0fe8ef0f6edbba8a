// Package prxw contains the receive window of a PGM receiver.
//
// A [Window] tracks the packets of a single multicast stream
// in a ring buffer indexed by sequence number.
// Packets that arrive out of order leave placeholders behind them,
// which move through a small state machine
// (back-off, waiting for NAK confirmation, waiting for repair data)
// until they are filled by a retransmission or declared lost.
// Each of those three states has a [Queue] that a separate timer goroutine
// may inspect without locks, to decide when to send NAKs.
//
// Complete APDUs are released in order through [*Window.Read].
// Delivered packets remain in the window, tagged committed,
// until [*Window.RemoveCommit] releases their transmission group.
//
// Apart from the queue heads and [*Window.Stats],
// methods on Window must only be called from a single owning goroutine.
package prxw
