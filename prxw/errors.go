package prxw

import "fmt"

// InvariantViolationError indicates that the window observed
// a state that its own bookkeeping should have made impossible.
//
// It is returned from the public method that detected the violation,
// and from every mutating method called afterwards.
// Callers should tear down the session owning the window;
// delivered data may no longer be trusted.
type InvariantViolationError struct {
	Msg string
}

func (e *InvariantViolationError) Error() string {
	return "BUG: receive window invariant violated: " + e.Msg
}

// violate aborts the current window operation.
// The panic is recovered by [*Window.guard].
func violate(format string, args ...any) {
	panic(&InvariantViolationError{Msg: fmt.Sprintf(format, args...)})
}

// guard converts an invariant violation raised during a public call
// into an error, poisons the window, and publishes fresh statistics.
//
// It must be deferred directly by the public method.
func (w *Window) guard(errp *error) {
	if r := recover(); r != nil {
		v, ok := r.(*InvariantViolationError)
		if !ok {
			panic(r)
		}

		w.broken = v
		w.log.Error("Receive window is unusable", "err", v, "window", w)
		*errp = v
	}

	w.publish()
}
