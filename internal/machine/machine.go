// Package machine folds a chronologically ordered event sequence into
// application state in two phases.
//
// ProcessEvent is called once per event and must stay cheap: it only
// accumulates into the Partial representation. Finalize runs once at the
// end of a fold and is where expensive derived values (rankings, statistics)
// are computed, so their cost is paid per batch instead of per event.
//
// Fold output depends only on the sequence it is given. Feeding it the
// merged sequence of a stream therefore yields identical state on every
// replica holding the same events.
package machine

import (
	"iter"

	"github.com/roach88/recall/internal/eventlog"
)

// Machine is a two-phase state machine over events E, with intermediate
// representation P and final state S.
type Machine[E eventlog.Event[E], P, S any] interface {
	// ProcessEvent incorporates one event into partial. Order-sensitive.
	ProcessEvent(partial P, ev *eventlog.Timestamped[E]) P

	// Finalize computes the final state from a fully folded partial.
	Finalize(partial P) S
}

// Reversible is a Machine whose final state converts back into a partial.
// That is enough to derive a single-event apply path.
type Reversible[E eventlog.Event[E], P, S any] interface {
	Machine[E, P, S]

	// Partial recovers the intermediate representation from a final state.
	Partial(state S) P
}

// Fold feeds every event of seq through m, starting from initial, and
// finalizes once.
func Fold[E eventlog.Event[E], P, S any](m Machine[E, P, S], initial P, seq iter.Seq[eventlog.Timestamped[E]]) S {
	partial := initial
	for ev := range seq {
		partial = m.ProcessEvent(partial, &ev)
	}
	return m.Finalize(partial)
}

// FoldStream folds the stream's merged sequence. It is the bulk load path.
func FoldStream[E eventlog.Event[E], P, S any](m Machine[E, P, S], initial P, s *eventlog.Stream[E]) S {
	return Fold(m, initial, Events(s.Merged()))
}

// Apply updates state with a single event by converting it back to a
// partial, processing ev and finalizing again. Derived values are
// recomputed on every call; use Fold or ApplyAll for more than one event.
func Apply[E eventlog.Event[E], P, S any](m Reversible[E, P, S], state S, ev *eventlog.Timestamped[E]) S {
	return m.Finalize(m.ProcessEvent(m.Partial(state), ev))
}

// ApplyAll updates state with events in order, finalizing once.
func ApplyAll[E eventlog.Event[E], P, S any](m Reversible[E, P, S], state S, events []eventlog.Timestamped[E]) S {
	partial := m.Partial(state)
	for i := range events {
		partial = m.ProcessEvent(partial, &events[i])
	}
	return m.Finalize(partial)
}

// Events strips device ids from a merged sequence.
func Events[E eventlog.Event[E]](merged iter.Seq[eventlog.Merged[E]]) iter.Seq[eventlog.Timestamped[E]] {
	return func(yield func(eventlog.Timestamped[E]) bool) {
		for m := range merged {
			if !yield(m.Timestamped) {
				return
			}
		}
	}
}
