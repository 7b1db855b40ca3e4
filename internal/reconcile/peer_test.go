package reconcile_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"maps"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/recall/internal/deck"
	"github.com/roach88/recall/internal/eventlog"
	"github.com/roach88/recall/internal/payload"
	"github.com/roach88/recall/internal/reconcile"
)

var base = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memPeer is an in-process replica holding deck streams.
type memPeer struct {
	t       *testing.T
	streams map[eventlog.StreamID]*eventlog.Stream[deck.Event]

	// corrupt makes Events return payloads that cannot decode.
	corrupt map[eventlog.StreamID]bool
	// reported overrides what Counts returns, to simulate a stale count.
	reported map[eventlog.StreamID]eventlog.Counts
	// failPush makes Push return a transport error.
	failPush error
	pushes   int
}

var _ reconcile.Local = (*memPeer)(nil)

func newPeer(t *testing.T) *memPeer {
	return &memPeer{
		t:        t,
		streams:  make(map[eventlog.StreamID]*eventlog.Stream[deck.Event]),
		corrupt:  make(map[eventlog.StreamID]bool),
		reported: make(map[eventlog.StreamID]eventlog.Counts),
	}
}

func (p *memPeer) stream(id eventlog.StreamID) *eventlog.Stream[deck.Event] {
	s, ok := p.streams[id]
	if !ok {
		s = eventlog.NewStream[deck.Event](id, eventlog.WithLogger(quietLogger()))
		p.streams[id] = s
	}
	return s
}

// record appends events for device at second sec.
func (p *memPeer) record(id eventlog.StreamID, device eventlog.DeviceID, sec int, events ...deck.Event) {
	p.t.Helper()
	s := p.stream(id)
	batch, ok := s.Validate(device, s.Stamp(device, base.Add(time.Duration(sec)*time.Second), events...))
	require.True(p.t, ok)
	_, err := s.Add(context.Background(), batch)
	require.NoError(p.t, err)
}

// Accepts holds deck streams only.
func (p *memPeer) Accepts(id eventlog.StreamID) bool {
	return id.Kind() == deck.Kind
}

func (p *memPeer) Streams(context.Context) ([]eventlog.StreamID, error) {
	return slices.Sorted(maps.Keys(p.streams)), nil
}

func (p *memPeer) Counts(_ context.Context, id eventlog.StreamID) (eventlog.Counts, error) {
	if c, ok := p.reported[id]; ok {
		return c.Clone(), nil
	}
	s, ok := p.streams[id]
	if !ok {
		return eventlog.Counts{}, nil
	}
	return s.NumEventsPerDevice(), nil
}

func (p *memPeer) Events(_ context.Context, id eventlog.StreamID, device eventlog.DeviceID, skip int) ([]eventlog.WireEvent, error) {
	s, ok := p.streams[id]
	if !ok {
		return nil, nil
	}
	events, err := s.EventValues(device, skip)
	if err != nil {
		return nil, err
	}
	if p.corrupt[id] {
		for i := range events {
			events[i].Event = payload.String("not a deck event")
		}
	}
	return events, nil
}

func (p *memPeer) Push(ctx context.Context, id eventlog.StreamID, device eventlog.DeviceID, events []eventlog.WireEvent) (int, error) {
	if p.failPush != nil {
		return 0, p.failPush
	}
	p.pushes++
	s := p.stream(id)
	batch, ok := s.ValidateGeneric(device, events)
	if !ok {
		return 0, nil
	}
	return s.AddGeneric(ctx, batch)
}

func (p *memPeer) EarliestUnsynced(_ context.Context, id eventlog.StreamID, synced eventlog.Counts) (time.Time, bool, error) {
	s, ok := p.streams[id]
	if !ok {
		return time.Time{}, false, nil
	}
	ts, found := s.EarliestUnsyncedTimestamp(synced)
	return ts, found, nil
}

func fingerprint(t *testing.T, p *memPeer, id eventlog.StreamID) string {
	t.Helper()
	return payload.MustFingerprintOf(payload.DomainState, deck.StateFor(p.stream(id)))
}

var errLink = errors.New("link down")
