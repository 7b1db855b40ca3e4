package eventlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Device A has five events; device B joins later with two events whose
// timestamps fall between A1 and A2.
func TestMerged_InterleavesByTimestamp(t *testing.T) {
	s := newTestStream(t)
	mustAdd(t, s, "A",
		ev("A0", 0, 0), ev("A1", 10, 1), ev("A2", 20, 2), ev("A3", 30, 3), ev("A4", 40, 4))
	mustAdd(t, s, "B", ev("B0", 12, 0), ev("B1", 14, 1))

	assert.Equal(t,
		[]string{"A:A0", "A:A1", "B:B0", "B:B1", "A:A2", "A:A3", "A:A4"},
		collect(s))
	assert.Equal(t, 7, s.NumEvents())
}

func TestMerged_Restartable(t *testing.T) {
	s := newTestStream(t)
	mustAdd(t, s, "A", ev("a", 0, 0), ev("b", 1, 1))
	mustAdd(t, s, "B", ev("c", 0, 0))

	first := collect(s)
	second := collect(s)
	assert.Equal(t, first, second)
	assert.Len(t, first, 3)
}

func TestMerged_EarlyBreak(t *testing.T) {
	s := newTestStream(t)
	mustAdd(t, s, "A", ev("a", 0, 0), ev("b", 1, 1), ev("c", 2, 2))

	var seen int
	for range s.Merged() {
		seen++
		if seen == 2 {
			break
		}
	}
	assert.Equal(t, 2, seen)
}

func TestMerged_Empty(t *testing.T) {
	s := newTestStream(t)
	assert.Empty(t, collect(s))
}

func TestMerged_TieBreaks(t *testing.T) {
	s := newTestStream(t)
	// Same timestamp and index on both devices: payload decides.
	mustAdd(t, s, "A", ev("z", 5, 0))
	mustAdd(t, s, "B", ev("m", 5, 0))
	// Identical timestamped event on a third device: device id decides.
	mustAdd(t, s, "C", ev("m", 5, 0))

	assert.Equal(t, []string{"B:m", "C:m", "A:z"}, collect(s))
}

func TestMerged_ClockWentBackwards(t *testing.T) {
	s := newTestStream(t)
	// Device A's clock jumped back between its second and third event.
	mustAdd(t, s, "A", ev("a0", 10, 0), ev("a1", 20, 1), ev("a2", 5, 2))
	mustAdd(t, s, "B", ev("b0", 15, 0))

	assert.Equal(t, []string{"A:a2", "A:a0", "B:b0", "A:a1"}, collect(s))

	// The index-ordered view used by sync is unaffected.
	events := s.Events("A")
	require.Len(t, events, 3)
	assert.Equal(t, "a2", events[2].Event.Text)

	// Appending after a backwards jump refreshes the merge view.
	mustAdd(t, s, "A", ev("a3", 1, 3))
	assert.Equal(t, []string{"A:a3", "A:a2", "A:a0", "B:b0", "A:a1"}, collect(s))
}

func TestMerged_IndependentOfArrivalOrder(t *testing.T) {
	a := []Timestamped[note]{ev("a0", 0, 0), ev("a1", 3, 1), ev("a2", 6, 2), ev("a3", 9, 3)}
	b := []Timestamped[note]{ev("b0", 1, 0), ev("b1", 4, 1), ev("b2", 7, 2)}
	c := []Timestamped[note]{ev("c0", 3, 0), ev("c1", 3, 1)}

	x := newTestStream(t)
	mustAdd(t, x, "A", a...)
	mustAdd(t, x, "B", b...)
	mustAdd(t, x, "C", c...)

	y := newTestStream(t)
	mustAdd(t, y, "C", c[0])
	mustAdd(t, y, "B", b[:2]...)
	mustAdd(t, y, "A", a[0])
	mustAdd(t, y, "C", c[1])
	mustAdd(t, y, "A", a[1:]...)
	mustAdd(t, y, "B", b[2])

	assert.Equal(t, collect(x), collect(y))
	assert.Equal(t, x.NumEventsPerDevice(), y.NumEventsPerDevice())
}

// Two replicas receive device A's events 0-9 in different network orders.
// Contiguity forces the second replica to drop the early 5-9 batch and
// accept it again after 0-4; both end identical.
func TestConvergence_OutOfOrderDelivery(t *testing.T) {
	var all []Timestamped[note]
	for i := range 10 {
		all = append(all, ev(string(rune('a'+i)), i, EventIndex(i)))
	}

	x := newTestStream(t)
	mustAdd(t, x, "A", all[:5]...)
	mustAdd(t, x, "A", all[5:]...)

	y := newTestStream(t)
	_, ok := y.Validate("A", all[5:])
	require.False(t, ok, "5-9 before 0-4 must be rejected")
	assert.Equal(t, 0, y.NumEvents())
	mustAdd(t, y, "A", all[:5]...)
	mustAdd(t, y, "A", all[5:]...)

	assert.Equal(t, x.Events("A"), y.Events("A"))
	assert.Equal(t, collect(x), collect(y))
}
