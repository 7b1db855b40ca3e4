// Package deck is a small flashcard domain used to exercise the event log
// and the two-phase state machine end to end.
//
// Its ranking is intentionally naive. Real scheduling belongs to the
// application built on top of recall.
package deck

import (
	"cmp"
	"strings"
)

// Kind is the stream kind for deck streams ("deck/<name>").
const Kind = "deck"

// Event kinds.
const (
	CardAdded    = "card_added"
	CardReviewed = "card_reviewed"
	CardRemoved  = "card_removed"
)

// Event is one change to a deck. Which fields are set depends on Kind.
type Event struct {
	Kind  string `json:"kind"`
	Card  string `json:"card"`
	Front string `json:"front,omitempty"`
	Back  string `json:"back,omitempty"`
	Grade int    `json:"grade,omitempty"`
}

// Compare orders events field by field so identical timestamps and indices
// still sort the same on every replica.
func (e Event) Compare(o Event) int {
	if c := strings.Compare(e.Kind, o.Kind); c != 0 {
		return c
	}
	if c := strings.Compare(e.Card, o.Card); c != 0 {
		return c
	}
	if c := strings.Compare(e.Front, o.Front); c != 0 {
		return c
	}
	if c := strings.Compare(e.Back, o.Back); c != 0 {
		return c
	}
	return cmp.Compare(e.Grade, o.Grade)
}

// Add returns a card_added event.
func Add(card, front, back string) Event {
	return Event{Kind: CardAdded, Card: card, Front: front, Back: back}
}

// Review returns a card_reviewed event. Grades run from 0 (forgot) to 5.
func Review(card string, grade int) Event {
	return Event{Kind: CardReviewed, Card: card, Grade: grade}
}

// Remove returns a card_removed event.
func Remove(card string) Event {
	return Event{Kind: CardRemoved, Card: card}
}

// Schema is the CUE definition deck payloads must satisfy.
const Schema = `
#Event: {
	kind:   "card_added" | "card_reviewed" | "card_removed"
	card:   string & != ""
	front?: string
	back?:  string
	grade?: int & >=0 & <=5
}
`
