package prxw

import (
	"strconv"
	"time"

	"github.com/gordian-engine/pgm/pskb"
	"github.com/gordian-engine/pgm/psqn"
)

// PacketState is the lifecycle state of a tracked sequence number.
type PacketState uint8

const (
	// Uninitialized.
	// A tracked entry is never left in this state between calls.
	StateError PacketState = iota

	// Placeholder for a missing packet,
	// waiting for the NAK back-off timer to expire.
	StateBackOff

	// NAK sent, waiting for a NAK confirmation.
	StateWaitNCF

	// NAK confirmed, waiting for repair data.
	StateWaitData

	// Payload present and not yet delivered.
	StateHaveData

	// Parity payload present, waiting for FEC.
	StateHaveParity

	// Delivered to the application,
	// retained for its transmission group.
	StateCommitData

	// Unrecoverable.
	StateLostData
)

func (s PacketState) String() string {
	switch s {
	case StateError:
		return "error"
	case StateBackOff:
		return "back-off"
	case StateWaitNCF:
		return "wait-ncf"
	case StateWaitData:
		return "wait-data"
	case StateHaveData:
		return "have-data"
	case StateHaveParity:
		return "have-parity"
	case StateCommitData:
		return "commit-data"
	case StateLostData:
		return "lost-data"
	default:
		return "PacketState(" + strconv.Itoa(int(s)) + ")"
	}
}

// Retries counts the recovery attempts for one sequence number.
type Retries struct {
	// NAKs sent, counted on each move into [StateWaitNCF].
	NakTransmits int

	// Moves from [StateWaitNCF] back to [StateBackOff].
	NCFRetries int

	// Moves from [StateWaitData] back to [StateBackOff].
	DataRetries int
}

// entry is the ring buffer slot content for one tracked sequence number.
// Placeholders have a nil skb.
type entry struct {
	sqn psqn.Sqn
	skb *pskb.Buffer

	// When the entry was created.
	ts time.Time

	state PacketState

	nakBackoffExpiry time.Time
	nakRepeatExpiry  time.Time
	repairDataExpiry time.Time

	retries Retries

	// Only meaningful on the first member of a transmission group.
	// Cleared when any later member of the group starts as a placeholder.
	contiguous bool

	// Intrusive links for the scheduling queue
	// matching the current state, if any.
	q          *Queue
	prev, next *entry
}

func (e *entry) length() int {
	if e.skb == nil {
		return 0
	}
	return e.skb.Len()
}

// setPacketState moves e into newState,
// first clearing its old queue membership and counters.
func (w *Window) setPacketState(e *entry, newState PacketState) {
	if e.state != StateError {
		w.clearPacketState(e)
	}

	switch newState {
	case StateBackOff:
		w.backoff.push(e)
	case StateWaitNCF:
		w.waitNCF.push(e)
	case StateWaitData:
		w.waitData.push(e)
	case StateHaveData:
		w.fragmentCount++
	case StateHaveParity:
		w.parityCount++
	case StateCommitData:
		w.committedCount++
	case StateLostData:
		w.lostCount++
		w.cumulativeLosses++
		w.hasEvent.Store(true)
	case StateError:
		// Nothing to track.
	default:
		violate("set sequence %s to unknown state %s", e.sqn, newState)
	}

	e.state = newState
}

// clearPacketState removes e from its queue and counters
// and leaves it in [StateError].
func (w *Window) clearPacketState(e *entry) {
	switch e.state {
	case StateBackOff:
		w.backoff.remove(e)
	case StateWaitNCF:
		w.waitNCF.remove(e)
	case StateWaitData:
		w.waitData.remove(e)
	case StateHaveData:
		w.fragmentCount--
	case StateHaveParity:
		w.parityCount--
	case StateCommitData:
		w.committedCount--
	case StateLostData:
		w.lostCount--
	case StateError:
		// Nothing tracked.
	default:
		violate("clear sequence %s from unknown state %s", e.sqn, e.state)
	}

	e.state = StateError
}
