package deck

import (
	"cmp"
	"maps"
	"slices"
	"time"

	"github.com/roach88/recall/internal/eventlog"
	"github.com/roach88/recall/internal/machine"
)

// PassingGrade is the lowest grade that does not count as a lapse.
const PassingGrade = 3

// Card is the folded state of one card.
type Card struct {
	Front        string    `json:"front"`
	Back         string    `json:"back"`
	Reviews      int       `json:"reviews"`
	Lapses       int       `json:"lapses"`
	LastReviewed time.Time `json:"last_reviewed"`
}

// Partial accumulates cards while folding.
type Partial struct {
	Cards   map[string]Card
	Reviews int
}

// State is the derived deck state.
type State struct {
	Cards   map[string]Card `json:"cards"`
	Reviews int             `json:"reviews"`
	// Weakest lists card ids weakest first: most lapses, then fewest
	// reviews, then id.
	Weakest []string `json:"weakest"`
}

// Machine folds deck events. It is reversible.
type Machine struct{}

var _ machine.Reversible[Event, Partial, State] = Machine{}

// ProcessEvent implements machine.Machine. It updates p in place.
//
// Adding an existing card overwrites its text and keeps its history.
// Reviews and removals of unknown cards are ignored, since a review can
// merge ahead of the add from another device.
func (Machine) ProcessEvent(p Partial, ev *eventlog.Timestamped[Event]) Partial {
	if p.Cards == nil {
		p.Cards = make(map[string]Card)
	}
	e := ev.Event
	switch e.Kind {
	case CardAdded:
		c := p.Cards[e.Card]
		c.Front, c.Back = e.Front, e.Back
		p.Cards[e.Card] = c
	case CardReviewed:
		c, ok := p.Cards[e.Card]
		if !ok {
			return p
		}
		c.Reviews++
		if e.Grade < PassingGrade {
			c.Lapses++
		}
		c.LastReviewed = ev.Timestamp
		p.Cards[e.Card] = c
		p.Reviews++
	case CardRemoved:
		delete(p.Cards, e.Card)
	}
	return p
}

// Finalize implements machine.Machine.
func (Machine) Finalize(p Partial) State {
	cards := p.Cards
	if cards == nil {
		cards = map[string]Card{}
	}
	weakest := slices.SortedFunc(maps.Keys(cards), func(a, b string) int {
		ca, cb := cards[a], cards[b]
		if c := cmp.Compare(cb.Lapses, ca.Lapses); c != 0 {
			return c
		}
		if c := cmp.Compare(ca.Reviews, cb.Reviews); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	if weakest == nil {
		weakest = []string{}
	}
	return State{Cards: cards, Reviews: p.Reviews, Weakest: weakest}
}

// Partial implements machine.Reversible. The card map is copied so that
// folding onward never changes s.
func (Machine) Partial(s State) Partial {
	return Partial{Cards: maps.Clone(s.Cards), Reviews: s.Reviews}
}

// StateFor folds the whole stream.
func StateFor(s *eventlog.Stream[Event]) State {
	return machine.FoldStream[Event, Partial, State](Machine{}, Partial{}, s)
}

// Apply adds one event to an existing state.
func Apply(s State, ev eventlog.Timestamped[Event]) State {
	return machine.Apply[Event, Partial, State](Machine{}, s, &ev)
}
