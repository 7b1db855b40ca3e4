package deck

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recall/internal/eventlog"
	"github.com/roach88/recall/internal/payload"
)

var base = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

func newDeck(t *testing.T) *eventlog.Stream[Event] {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return eventlog.NewStream[Event]("deck/spanish", eventlog.WithLogger(logger))
}

func record(t *testing.T, s *eventlog.Stream[Event], device eventlog.DeviceID, sec int, events ...Event) {
	t.Helper()
	batch, ok := s.Validate(device, s.Stamp(device, base.Add(time.Duration(sec)*time.Second), events...))
	require.True(t, ok)
	_, err := s.Add(context.Background(), batch)
	require.NoError(t, err)
}

func TestStateFor_FoldsCards(t *testing.T) {
	s := newDeck(t)
	record(t, s, "phone", 0, Add("c1", "hola", "hello"), Add("c2", "adios", "bye"))
	record(t, s, "laptop", 5, Add("c3", "gato", "cat"))
	record(t, s, "phone", 10, Review("c1", 5), Review("c2", 1), Review("c3", 2), Review("c3", 1))

	state := StateFor(s)

	require.Len(t, state.Cards, 3)
	assert.Equal(t, "hola", state.Cards["c1"].Front)
	assert.Equal(t, 2, state.Cards["c3"].Lapses)
	assert.Equal(t, 4, state.Reviews)
	assert.Equal(t, base.Add(10*time.Second), state.Cards["c1"].LastReviewed)
	assert.Equal(t, []string{"c3", "c2", "c1"}, state.Weakest)
}

func TestStateFor_Empty(t *testing.T) {
	state := StateFor(newDeck(t))
	assert.Empty(t, state.Cards)
	assert.Equal(t, []string{}, state.Weakest)
}

func TestProcessEvent_ReviewBeforeAddIgnored(t *testing.T) {
	s := newDeck(t)
	record(t, s, "laptop", 0, Review("c1", 0))
	record(t, s, "phone", 1, Add("c1", "uno", "one"))

	state := StateFor(s)
	assert.Equal(t, 0, state.Cards["c1"].Reviews)
	assert.Equal(t, 0, state.Reviews)
}

func TestProcessEvent_RemoveAndReadd(t *testing.T) {
	s := newDeck(t)
	record(t, s, "phone", 0, Add("c1", "uno", "one"), Review("c1", 1))
	record(t, s, "phone", 1, Remove("c1"))
	assert.Empty(t, StateFor(s).Cards)

	record(t, s, "phone", 2, Add("c1", "uno", "one"))
	state := StateFor(s)
	assert.Equal(t, 0, state.Cards["c1"].Lapses, "history is dropped on removal")
	assert.Equal(t, 1, state.Reviews)
}

func TestApply_MatchesFold(t *testing.T) {
	s := newDeck(t)
	record(t, s, "phone", 0, Add("a", "1", "one"), Add("b", "2", "two"))
	record(t, s, "laptop", 3, Review("a", 2), Review("b", 4))
	record(t, s, "phone", 6, Remove("b"), Review("a", 0))

	batch := StateFor(s)

	incremental := Machine{}.Finalize(Partial{})
	for m := range s.Merged() {
		incremental = Apply(incremental, m.Timestamped)
	}

	assert.Equal(t, batch, incremental)
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	s := newDeck(t)
	record(t, s, "phone", 0, Add("a", "1", "one"))
	before := StateFor(s)

	after := Apply(before, eventlog.Timestamped[Event]{Event: Add("b", "2", "two"), Timestamp: base, Index: 1})

	assert.Len(t, before.Cards, 1)
	assert.Len(t, after.Cards, 2)
}

func TestStateFor_FingerprintIndependentOfArrival(t *testing.T) {
	phone := []Event{Add("a", "1", "one"), Review("a", 3), Add("b", "2", "two")}
	laptop := []Event{Add("c", "3", "three"), Review("a", 1)}

	x := newDeck(t)
	record(t, x, "phone", 0, phone...)
	record(t, x, "laptop", 1, laptop...)

	y := newDeck(t)
	record(t, y, "laptop", 1, laptop...)
	record(t, y, "phone", 0, phone...)

	fx, err := payload.FingerprintOf(payload.DomainState, StateFor(x))
	require.NoError(t, err)
	fy, err := payload.FingerprintOf(payload.DomainState, StateFor(y))
	require.NoError(t, err)
	assert.Equal(t, fx, fy)
}

func TestEvent_Compare(t *testing.T) {
	assert.Equal(t, 0, Review("a", 3).Compare(Review("a", 3)))
	assert.Negative(t, Review("a", 2).Compare(Review("a", 3)))
	assert.Negative(t, Add("a", "x", "y").Compare(Review("a", 0)))
	assert.Positive(t, Review("a", 0).Compare(Remove("a")))
}
