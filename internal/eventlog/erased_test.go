package eventlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recall/internal/payload"
)

func wire(text string, sec int, idx EventIndex) WireEvent {
	return WireEvent{Event: payload.Object{"text": payload.String(text)}, Timestamp: at(sec), Index: idx}
}

func TestEventValues_SkipsInIndexOrder(t *testing.T) {
	s := newTestStream(t)
	mustAdd(t, s, "A", ev("a", 0, 0), ev("b", 1, 1), ev("c", 2, 2))

	values, err := s.EventValues("A", 1)
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.Equal(t, EventIndex(1), values[0].Index)
	assert.Equal(t, payload.Object{"text": payload.String("b")}, values[0].Event)
	assert.Equal(t, at(1), values[0].Timestamp)

	values, err = s.EventValues("A", 3)
	require.NoError(t, err)
	assert.Empty(t, values)

	values, err = s.EventValues("unknown", 0)
	require.NoError(t, err)
	assert.Empty(t, values)
}

// Side X reports {A: 4, B: 1}; side Y has {A: 6, B: 1} and sends the two
// events after skip 4. X validates against its own length and accepts.
func TestGenericDiffRound(t *testing.T) {
	ctx := context.Background()
	x := newTestStream(t)
	y := newTestStream(t)

	for _, s := range []*Stream[note]{x, y} {
		mustAdd(t, s, "A", ev("a0", 0, 0), ev("a1", 1, 1), ev("a2", 2, 2), ev("a3", 3, 3))
		mustAdd(t, s, "B", ev("b0", 1, 0))
	}
	mustAdd(t, y, "A", ev("a4", 4, 4), ev("a5", 5, 5))

	xCounts := x.NumEventsPerDevice()
	assert.Equal(t, Counts{"A": 4, "B": 1}, xCounts)

	values, err := y.EventValues("A", xCounts["A"])
	require.NoError(t, err)
	require.Len(t, values, 2)

	batch, ok := x.ValidateGeneric("A", values)
	require.True(t, ok)
	n, err := x.AddGeneric(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, Counts{"A": 6, "B": 1}, x.NumEventsPerDevice())
	assert.Equal(t, collect(y), collect(x))
}

func TestValidateGeneric_SameRulesAsValidate(t *testing.T) {
	s := newTestStream(t)

	_, ok := s.ValidateGeneric("A", nil)
	assert.False(t, ok, "empty")
	_, ok = s.ValidateGeneric("A", []WireEvent{wire("a", 0, 1)})
	assert.False(t, ok, "wrong start")
	_, ok = s.ValidateGeneric("A", []WireEvent{wire("a", 0, 0), wire("b", 0, 2)})
	assert.False(t, ok, "gap")

	batch, ok := s.ValidateGeneric("A", []WireEvent{wire("b", 1, 1), wire("a", 0, 0)})
	require.True(t, ok)
	assert.Equal(t, EventIndex(0), batch.Events()[0].Index)
}

func TestAddGeneric_DecodeErrorIsHardAndAtomic(t *testing.T) {
	s := newTestStream(t)
	bad := WireEvent{Event: payload.Object{"text": payload.Int(3)}, Timestamp: at(1), Index: 1}

	batch, ok := s.ValidateGeneric("A", []WireEvent{wire("a", 0, 0), bad})
	require.True(t, ok, "index checks do not look at payloads")

	n, err := s.AddGeneric(context.Background(), batch)
	require.Error(t, err)
	assert.True(t, IsDecodeError(err))
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, s.NumEvents(), "the valid first event must not be applied")

	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, StreamID("note/test"), de.Stream)
	assert.Equal(t, DeviceID("A"), de.Device)
	assert.Equal(t, EventIndex(1), de.Index)
}

func TestAddGeneric_UnknownFieldIsDecodeError(t *testing.T) {
	s := newTestStream(t)
	extra := WireEvent{
		Event:     payload.Object{"text": payload.String("a"), "color": payload.String("red")},
		Timestamp: at(0),
	}

	batch, ok := s.ValidateGeneric("A", []WireEvent{extra})
	require.True(t, ok)
	_, err := s.AddGeneric(context.Background(), batch)
	assert.True(t, IsDecodeError(err))
}

type rejectAll struct{}

func (rejectAll) Validate(payload.Value) error { return errors.New("schema says no") }

func TestAddGeneric_ValidatorFailureIsDecodeError(t *testing.T) {
	s := NewStream[note]("note/test", WithLogger(quietLogger()), WithValidator(rejectAll{}))

	batch, ok := s.ValidateGeneric("A", []WireEvent{wire("a", 0, 0)})
	require.True(t, ok)
	_, err := s.AddGeneric(context.Background(), batch)
	require.Error(t, err)
	assert.True(t, IsDecodeError(err))
	assert.Contains(t, err.Error(), "schema says no")
}

func TestAddGeneric_StaleBatchIsNoop(t *testing.T) {
	s := newTestStream(t)
	batch, ok := s.ValidateGeneric("A", []WireEvent{wire("a", 0, 0)})
	require.True(t, ok)
	mustAdd(t, s, "A", ev("a", 0, 0))

	n, err := s.AddGeneric(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, s.NumEvents())
}

func TestEarliestUnsyncedTimestamp(t *testing.T) {
	s := newTestStream(t)
	mustAdd(t, s, "A", ev("a0", 0, 0), ev("a1", 10, 1), ev("a2", 20, 2))
	mustAdd(t, s, "B", ev("b0", 5, 0), ev("b1", 15, 1))

	ts, ok := s.EarliestUnsyncedTimestamp(nil)
	require.True(t, ok)
	assert.Equal(t, at(0), ts)

	ts, ok = s.EarliestUnsyncedTimestamp(Counts{"A": 2, "B": 1})
	require.True(t, ok)
	assert.Equal(t, at(15), ts)

	_, ok = s.EarliestUnsyncedTimestamp(Counts{"A": 3, "B": 2})
	assert.False(t, ok)
}

func TestEarliestUnsyncedTimestamp_NonMonotonicClock(t *testing.T) {
	s := newTestStream(t)
	mustAdd(t, s, "A", ev("a0", 30, 0), ev("a1", 40, 1), ev("a2", 2, 2))

	ts, ok := s.EarliestUnsyncedTimestamp(Counts{"A": 1})
	require.True(t, ok)
	assert.Equal(t, at(2), ts)
}

func TestWireRoundTrip(t *testing.T) {
	orig := Timestamped[note]{
		Event:     note{Text: "héllo <b>"},
		Timestamp: time.Date(2026, 3, 4, 5, 6, 7, 123456789, time.UTC),
		Index:     42,
	}

	w, err := Encode(orig)
	require.NoError(t, err)
	data, err := w.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"event":{"text":"héllo <b>"},"timestamp":"2026-03-04T05:06:07.123456789Z","index":42}`,
		string(data))

	var back WireEvent
	require.NoError(t, back.UnmarshalJSON(data))
	got, err := Decode[note](back)
	require.NoError(t, err)
	assert.Equal(t, orig, got)
}

func TestWireEvent_UnmarshalRejects(t *testing.T) {
	for name, data := range map[string]string{
		"missing event": `{"timestamp":"2026-01-01T00:00:00Z","index":0}`,
		"null event":    `{"event":null,"timestamp":"2026-01-01T00:00:00Z","index":0}`,
		"float":         `{"event":{"n":1.5},"timestamp":"2026-01-01T00:00:00Z","index":0}`,
		"bad timestamp": `{"event":{},"timestamp":"yesterday","index":0}`,
		"negative":      `{"event":{},"timestamp":"2026-01-01T00:00:00Z","index":-1}`,
	} {
		t.Run(name, func(t *testing.T) {
			var w WireEvent
			assert.Error(t, w.UnmarshalJSON([]byte(data)))
		})
	}
}

func TestWireEvent_InvalidPayloadIsDecodeError(t *testing.T) {
	for name, tc := range map[string]struct {
		data   string
		decode bool
	}{
		"float":         {`{"event":{"n":1.5},"timestamp":"2026-01-01T00:00:00Z","index":3}`, true},
		"null event":    {`{"event":null,"timestamp":"2026-01-01T00:00:00Z","index":3}`, true},
		"bad timestamp": {`{"event":{},"timestamp":"yesterday","index":3}`, false},
		"not an object": {`[1,2]`, false},
	} {
		t.Run(name, func(t *testing.T) {
			var w WireEvent
			err := w.UnmarshalJSON([]byte(tc.data))
			require.Error(t, err)
			var de *DecodeError
			require.Equal(t, tc.decode, errors.As(err, &de))
			if tc.decode {
				assert.Equal(t, EventIndex(3), de.Index)
			}
		})
	}
}

func TestWireEvent_NonUTCTimestampNormalized(t *testing.T) {
	var w WireEvent
	require.NoError(t, w.UnmarshalJSON([]byte(`{"event":{},"timestamp":"2026-01-01T02:00:00+02:00","index":0}`)))
	assert.Equal(t, t0, w.Timestamp)
}
