package eventlog

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_AcceptsContiguousFromZero(t *testing.T) {
	s := newTestStream(t)

	batch, ok := s.Validate("A", []Timestamped[note]{ev("a", 0, 0), ev("b", 1, 1)})
	require.True(t, ok)
	assert.Equal(t, DeviceID("A"), batch.Device())
	assert.Equal(t, 2, batch.Len())
}

func TestValidate_SortsByIndex(t *testing.T) {
	s := newTestStream(t)

	batch, ok := s.Validate("A", []Timestamped[note]{ev("c", 2, 2), ev("a", 0, 0), ev("b", 1, 1)})
	require.True(t, ok)

	events := batch.Events()
	require.Len(t, events, 3)
	for i, e := range events {
		assert.Equal(t, EventIndex(i), e.Index)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		batch []Timestamped[note]
	}{
		{"empty", nil},
		{"wrong start", []Timestamped[note]{ev("a", 0, 1)}},
		{"gap", []Timestamped[note]{ev("a", 0, 0), ev("b", 1, 2)}},
		{"duplicate", []Timestamped[note]{ev("a", 0, 0), ev("a", 0, 0)}},
		{"duplicate index different payload", []Timestamped[note]{ev("a", 0, 0), ev("b", 1, 0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStream(t)
			_, ok := s.Validate("A", tt.batch)
			assert.False(t, ok)
			assert.Equal(t, 0, s.NumEvents())
		})
	}
}

func TestValidate_LogsWarningWithReason(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	s := NewStream[note]("note/test", WithLogger(logger))

	_, ok := s.Validate("A", []Timestamped[note]{ev("a", 0, 3)})
	require.False(t, ok)

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "stream=note/test")
	assert.Contains(t, out, "device=A")
	assert.Contains(t, out, "does not start at log length")
}

// Device A has 4 events; a batch starting at 5 is rejected, one starting at
// 4 is accepted.
func TestValidate_StartIndexMustEqualLength(t *testing.T) {
	s := newTestStream(t)
	mustAdd(t, s, "A", ev("a", 0, 0), ev("b", 1, 1), ev("c", 2, 2), ev("d", 3, 3))

	_, ok := s.Validate("A", []Timestamped[note]{ev("f", 5, 5)})
	assert.False(t, ok)
	assert.Equal(t, 4, s.Log("A").Len())

	mustAdd(t, s, "A", ev("e", 4, 4), ev("f", 5, 5))
	assert.Equal(t, 6, s.Log("A").Len())
}

func TestAdd_StaleBatchIsNoop(t *testing.T) {
	s := newTestStream(t)
	ctx := context.Background()

	first, ok := s.Validate("A", []Timestamped[note]{ev("a", 0, 0)})
	require.True(t, ok)
	second, ok := s.Validate("A", []Timestamped[note]{ev("a", 0, 0)})
	require.True(t, ok)

	n, err := s.Add(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.Add(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "re-validation must catch the stale batch")
	assert.Equal(t, 1, s.NumEvents())
}

func TestAdd_BatchFromOtherStreamRejected(t *testing.T) {
	other := NewStream[note]("note/other", WithLogger(quietLogger()))
	batch, ok := other.Validate("A", []Timestamped[note]{ev("a", 0, 0)})
	require.True(t, ok)

	s := newTestStream(t)
	n, err := s.Add(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, s.NumEvents())
}

func TestCounts_SumOfAcceptedBatches(t *testing.T) {
	s := newTestStream(t)
	mustAdd(t, s, "A", ev("a0", 0, 0), ev("a1", 1, 1))
	mustAdd(t, s, "B", ev("b0", 0, 0))
	mustAdd(t, s, "A", ev("a2", 2, 2))

	counts := s.NumEventsPerDevice()
	assert.Equal(t, Counts{"A": 3, "B": 1}, counts)
	assert.Equal(t, 4, s.NumEvents())
	assert.Equal(t, counts.Total(), s.NumEvents())
	assert.Equal(t, []DeviceID{"A", "B"}, s.Devices())
}

func TestStamp_ContinuesFromLogLength(t *testing.T) {
	s := newTestStream(t)
	mustAdd(t, s, "A", ev("a", 0, 0))

	stamped := s.Stamp("A", at(10), note{Text: "b"}, note{Text: "c"})
	require.Len(t, stamped, 2)
	assert.Equal(t, EventIndex(1), stamped[0].Index)
	assert.Equal(t, EventIndex(2), stamped[1].Index)
	assert.Equal(t, at(10), stamped[0].Timestamp)

	mustAdd(t, s, "A", stamped...)
	assert.Equal(t, 3, s.Log("A").Len())
}

func TestEvents_ReturnsCopy(t *testing.T) {
	s := newTestStream(t)
	mustAdd(t, s, "A", ev("a", 0, 0))

	events := s.Events("A")
	events[0].Event.Text = "mutated"

	assert.Equal(t, "a", s.Events("A")[0].Event.Text)
	assert.Empty(t, s.Events("missing"))
}

type recordingSink struct {
	calls []sinkCall
	err   error
}

type sinkCall struct {
	stream StreamID
	device DeviceID
	events []WireEvent
}

func (r *recordingSink) Append(_ context.Context, stream StreamID, device DeviceID, events []WireEvent) error {
	if r.err != nil {
		return r.err
	}
	r.calls = append(r.calls, sinkCall{stream: stream, device: device, events: events})
	return nil
}

func TestAdd_PersistsToSinkBeforeInsert(t *testing.T) {
	s := newTestStream(t)
	sink := &recordingSink{}
	s.SetSink(sink)

	mustAdd(t, s, "A", ev("a", 0, 0), ev("b", 1, 1))

	require.Len(t, sink.calls, 1)
	call := sink.calls[0]
	assert.Equal(t, StreamID("note/test"), call.stream)
	assert.Equal(t, DeviceID("A"), call.device)
	require.Len(t, call.events, 2)
	assert.Equal(t, EventIndex(1), call.events[1].Index)
}

func TestAdd_SinkErrorLeavesStreamUntouched(t *testing.T) {
	s := newTestStream(t)
	boom := errors.New("disk full")
	s.SetSink(&recordingSink{err: boom})

	batch, ok := s.Validate("A", []Timestamped[note]{ev("a", 0, 0)})
	require.True(t, ok)

	n, err := s.Add(context.Background(), batch)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, s.NumEvents())
	assert.Nil(t, s.Log("A"), "device log is created only on successful append")
}

func TestParseStreamID(t *testing.T) {
	id, err := ParseStreamID("deck/spanish")
	require.NoError(t, err)
	assert.Equal(t, "deck", id.Kind())
	assert.Equal(t, "spanish", id.Name())

	id, err = ParseStreamID("deck/a/b")
	require.NoError(t, err)
	assert.Equal(t, "a/b", id.Name())

	for _, bad := range []string{"", "deck", "deck/", "/x", "deck/a\x00b"} {
		_, err := ParseStreamID(bad)
		assert.Error(t, err, "%q should be rejected", bad)
	}
}

func TestParseDeviceID(t *testing.T) {
	id, err := ParseDeviceID("phone")
	require.NoError(t, err)
	assert.Equal(t, DeviceID("phone"), id)

	for _, bad := range []string{"", "\x00", "a\x00", "a\x00b"} {
		_, err := ParseDeviceID(bad)
		assert.Error(t, err, "%q should be rejected", bad)
	}
}

func TestFixedGenerator(t *testing.T) {
	g := NewFixedGenerator("d1", "d2")
	assert.Equal(t, DeviceID("d1"), g.Generate())
	assert.Equal(t, DeviceID("d2"), g.Generate())
	assert.Panics(t, func() { g.Generate() })
}

func TestUUIDv7Generator_Unique(t *testing.T) {
	var g UUIDv7Generator
	a, b := g.Generate(), g.Generate()
	assert.NotEqual(t, a, b)
	assert.Len(t, string(a), 36)
}
