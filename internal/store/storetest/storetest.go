// Package storetest is a conformance suite every store.Backend must pass.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recall/internal/eventlog"
	"github.com/roach88/recall/internal/payload"
	"github.com/roach88/recall/internal/store"
)

// Factory opens a fresh, empty backend. The suite closes it.
type Factory func(t *testing.T) store.Backend

var base = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// Record builds a wire event with a small object payload.
func Record(idx int, text string) eventlog.WireEvent {
	return eventlog.WireEvent{
		Event: payload.Object{
			"text": payload.String(text),
			"n":    payload.Int(idx),
			"tags": payload.Array{payload.Bool(true), payload.Null{}},
		},
		Timestamp: base.Add(time.Duration(idx) * time.Millisecond),
		Index:     eventlog.EventIndex(idx),
	}
}

// Records builds records from..to-1.
func Records(from, to int) []eventlog.WireEvent {
	out := make([]eventlog.WireEvent, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, Record(i, "event"))
	}
	return out
}

// Run exercises b against the Backend contract.
func Run(t *testing.T, open Factory) {
	t.Run("EmptyBackend", func(t *testing.T) { testEmpty(t, open) })
	t.Run("AppendAndLoad", func(t *testing.T) { testAppendAndLoad(t, open) })
	t.Run("RejectsNonContiguous", func(t *testing.T) { testNonContiguous(t, open) })
	t.Run("RejectsPrefixDevice", func(t *testing.T) { testPrefixDevice(t, open) })
	t.Run("ListsStreamsAndDevices", func(t *testing.T) { testListing(t, open) })
	t.Run("PreservesPayloadsExactly", func(t *testing.T) { testPayloads(t, open) })
	t.Run("ClosedBackendFails", func(t *testing.T) { testClosed(t, open) })
}

func testEmpty(t *testing.T, open Factory) {
	ctx := context.Background()
	b := open(t)
	defer b.Close()

	streams, err := b.Streams(ctx)
	require.NoError(t, err)
	assert.Empty(t, streams)

	devices, err := b.Devices(ctx, "deck/x")
	require.NoError(t, err)
	assert.Empty(t, devices)

	records, err := b.Load(ctx, "deck/x", "A")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func testAppendAndLoad(t *testing.T, open Factory) {
	ctx := context.Background()
	b := open(t)
	defer b.Close()

	require.NoError(t, b.Append(ctx, "deck/x", "A", Records(0, 3)))
	require.NoError(t, b.Append(ctx, "deck/x", "A", Records(3, 5)))

	records, err := b.Load(ctx, "deck/x", "A")
	require.NoError(t, err)
	require.Len(t, records, 5)
	for i, r := range records {
		assert.Equal(t, eventlog.EventIndex(i), r.Index)
		assert.True(t, Record(i, "event").Timestamp.Equal(r.Timestamp))
	}
}

func testNonContiguous(t *testing.T, open Factory) {
	ctx := context.Background()
	b := open(t)
	defer b.Close()

	err := b.Append(ctx, "deck/x", "A", Records(1, 2))
	require.ErrorIs(t, err, store.ErrNotContiguous, "must start at 0")

	require.NoError(t, b.Append(ctx, "deck/x", "A", Records(0, 2)))

	err = b.Append(ctx, "deck/x", "A", Records(0, 1))
	require.ErrorIs(t, err, store.ErrNotContiguous, "replayed index")

	gap := []eventlog.WireEvent{Record(2, "a"), Record(4, "b")}
	err = b.Append(ctx, "deck/x", "A", gap)
	require.ErrorIs(t, err, store.ErrNotContiguous, "gap")

	records, err := b.Load(ctx, "deck/x", "A")
	require.NoError(t, err)
	assert.Len(t, records, 2, "rejected appends leave no partial records")
}

// testPrefixDevice appends under a device id that extends another with a
// NUL byte, which key-prefix backends would read back as the shorter device.
func testPrefixDevice(t *testing.T, open Factory) {
	ctx := context.Background()
	b := open(t)
	defer b.Close()

	require.NoError(t, b.Append(ctx, "deck/x", "a", Records(0, 1)))

	for _, bad := range []eventlog.DeviceID{"a\x00", "", "\x00a"} {
		err := b.Append(ctx, "deck/x", bad, Records(0, 1))
		require.ErrorIs(t, err, store.ErrInvalidDevice, "%q", bad)
	}

	records, err := b.Load(ctx, "deck/x", "a")
	require.NoError(t, err)
	assert.Len(t, records, 1)

	devices, err := b.Devices(ctx, "deck/x")
	require.NoError(t, err)
	assert.Equal(t, []eventlog.DeviceID{"a"}, devices)
}

func testListing(t *testing.T, open Factory) {
	ctx := context.Background()
	b := open(t)
	defer b.Close()

	require.NoError(t, b.Append(ctx, "deck/b", "phone", Records(0, 1)))
	require.NoError(t, b.Append(ctx, "deck/a", "phone", Records(0, 1)))
	require.NoError(t, b.Append(ctx, "deck/a", "laptop", Records(0, 2)))
	require.NoError(t, b.Append(ctx, "deck/a/nested", "tablet", Records(0, 1)))

	streams, err := b.Streams(ctx)
	require.NoError(t, err)
	assert.Equal(t, []eventlog.StreamID{"deck/a", "deck/a/nested", "deck/b"}, streams)

	devices, err := b.Devices(ctx, "deck/a")
	require.NoError(t, err)
	assert.Equal(t, []eventlog.DeviceID{"laptop", "phone"}, devices)
}

func testPayloads(t *testing.T, open Factory) {
	ctx := context.Background()
	b := open(t)
	defer b.Close()

	want := eventlog.WireEvent{
		Event: payload.Object{
			"s":      payload.String("tab\tquote\" <html> é"),
			"big":    payload.Int(1 << 62),
			"neg":    payload.Int(-7),
			"nested": payload.Object{"empty": payload.Array{}},
		},
		Timestamp: time.Date(2026, 5, 6, 7, 8, 9, 123456789, time.UTC),
		Index:     0,
	}
	require.NoError(t, b.Append(ctx, "deck/p", "A", []eventlog.WireEvent{want}))

	got, err := b.Load(ctx, "deck/p", "A")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, payload.Equal(want.Event, got[0].Event))
	assert.True(t, want.Timestamp.Equal(got[0].Timestamp))
}

func testClosed(t *testing.T, open Factory) {
	ctx := context.Background()
	b := open(t)
	require.NoError(t, b.Close())

	err := b.Append(ctx, "deck/x", "A", Records(0, 1))
	assert.Error(t, err)
}
