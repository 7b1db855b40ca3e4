package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http/httptest"
	"slices"
	"time"

	"github.com/roach88/recall/internal/deck"
	"github.com/roach88/recall/internal/eventlog"
	"github.com/roach88/recall/internal/httpsync"
	"github.com/roach88/recall/internal/payload"
	"github.com/roach88/recall/internal/reconcile"
	"github.com/roach88/recall/internal/replica"
	"github.com/roach88/recall/internal/schema"
	"github.com/roach88/recall/internal/store"
	"github.com/roach88/recall/internal/testutil"
)

// Epoch is the time every device clock starts at.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

var deckSchema = schema.MustCompile("deck.cue", deck.Schema)

// device is one replica taking part in a scenario.
type device struct {
	name    string
	clock   *testutil.Clock
	replica *replica.Replica
	cursors *reconcile.MemoryCursors
	server  *httptest.Server
}

// Harness runs one scenario. Each run gets fresh in-memory backends.
type Harness struct {
	devices map[string]*device
	order   []string
	logger  *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Execution flow:
// 1. Create one replica per device
// 2. Execute steps in order
// 3. Capture every device's final state for every stream mentioned
// 4. Evaluate assertions
//
// An error means the scenario could not be executed; failed assertions are
// reported in the Result instead.
func Run(scenario *Scenario) (*Result, error) {
	h, err := newHarness(scenario.Devices)
	if err != nil {
		return nil, err
	}
	defer h.close()

	ctx := context.Background()
	result := NewResult()
	for i, step := range scenario.Steps {
		entry, err := h.execute(ctx, i, step)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		result.Trace = append(result.Trace, entry)
	}

	for _, name := range h.order {
		result.Final[name] = make(map[string]DeviceState)
		for _, stream := range streamsOf(scenario) {
			st, err := h.snapshot(ctx, h.devices[name], stream)
			if err != nil {
				return nil, fmt.Errorf("final state of %s: %w", name, err)
			}
			result.Final[name][string(stream)] = st
		}
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(names []string) (*Harness, error) {
	h := &Harness{
		devices: make(map[string]*device, len(names)),
		order:   slices.Clone(names),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	for _, name := range names {
		clock := testutil.NewClock(Epoch, time.Second)
		r, err := replica.New(eventlog.DeviceID(name), store.NewMemory(),
			replica.WithLogger(h.logger),
			replica.WithClock(clock.Now),
		)
		if err != nil {
			return nil, err
		}
		if err := replica.Register[deck.Event](r, deck.Kind, replica.WithSchema(deckSchema)); err != nil {
			return nil, err
		}
		h.devices[name] = &device{
			name:    name,
			clock:   clock,
			replica: r,
			cursors: reconcile.NewMemoryCursors(),
		}
	}
	return h, nil
}

func (h *Harness) close() {
	for _, d := range h.devices {
		if d.server != nil {
			d.server.Close()
		}
	}
}

func (h *Harness) execute(ctx context.Context, i int, step Step) (TraceEntry, error) {
	if step.Record != nil {
		return h.record(ctx, i, step.Record)
	}
	return h.sync(ctx, i, step.Sync)
}

func (h *Harness) record(ctx context.Context, i int, step *RecordStep) (TraceEntry, error) {
	d := h.devices[step.Device]
	if step.At != nil {
		d.clock.Set(Epoch.Add(time.Duration(*step.At) * time.Second))
	}
	events := make([]deck.Event, len(step.Events))
	for j, e := range step.Events {
		events[j] = e.event()
	}
	stored, err := replica.Record(ctx, d.replica, eventlog.StreamID(step.Stream), events...)
	if err != nil {
		return TraceEntry{}, err
	}
	return TraceEntry{
		Step:   i,
		Op:     "record",
		Device: step.Device,
		Stream: step.Stream,
		Added:  len(stored),
	}, nil
}

func (h *Harness) sync(ctx context.Context, i int, step *SyncStep) (TraceEntry, error) {
	local, remote := h.devices[step.Local], h.devices[step.Remote]

	var peer reconcile.Peer = remote.replica
	if step.Transport == TransportHTTP {
		if remote.server == nil {
			remote.server = httptest.NewServer(httpsync.NewServer(remote.replica, httpsync.WithServerLogger(h.logger)).Handler())
		}
		client, err := httpsync.NewClient(remote.server.URL, remote.server.Client())
		if err != nil {
			return TraceEntry{}, err
		}
		peer = client
	}

	session := &reconcile.Session{
		Local:    local.replica,
		Remote:   peer,
		PeerName: remote.name,
		Cursors:  local.cursors,
		Logger:   h.logger,
	}
	report, err := session.Run(ctx)
	if err != nil {
		return TraceEntry{}, err
	}

	entry := TraceEntry{
		Step:   i,
		Op:     "sync",
		Local:  step.Local,
		Remote: step.Remote,
		Pulled: report.Pulled(),
		Pushed: report.Pushed(),
	}
	for _, id := range report.Skipped {
		entry.Skipped = append(entry.Skipped, string(id))
	}
	return entry, nil
}

func (h *Harness) snapshot(ctx context.Context, d *device, id eventlog.StreamID) (DeviceState, error) {
	counts, err := d.replica.Counts(ctx, id)
	if err != nil {
		return DeviceState{}, err
	}
	var state deck.State
	err = replica.View(ctx, d.replica, id, func(s *eventlog.Stream[deck.Event]) error {
		state = deck.StateFor(s)
		return nil
	})
	if err != nil {
		return DeviceState{}, err
	}
	fp, err := payload.FingerprintOf(payload.DomainState, state)
	if err != nil {
		return DeviceState{}, err
	}

	ds := DeviceState{
		Counts:      make(map[string]int, len(counts)),
		Cards:       make(map[string]CardState, len(state.Cards)),
		Reviews:     state.Reviews,
		Weakest:     state.Weakest,
		Fingerprint: fp,
	}
	for dev, n := range counts {
		ds.Counts[string(dev)] = n
	}
	for card, c := range state.Cards {
		ds.Cards[card] = CardState{Front: c.Front, Back: c.Back, Reviews: c.Reviews, Lapses: c.Lapses}
	}
	return ds, nil
}

// streamsOf returns every stream a scenario mentions, sorted.
func streamsOf(s *Scenario) []eventlog.StreamID {
	set := make(map[eventlog.StreamID]struct{})
	for _, step := range s.Steps {
		if step.Record != nil {
			set[eventlog.StreamID(step.Record.Stream)] = struct{}{}
		}
	}
	for _, a := range s.Assertions {
		set[eventlog.StreamID(a.Stream)] = struct{}{}
	}
	return slices.Sorted(maps.Keys(set))
}
