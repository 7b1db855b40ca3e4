package eventlog

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/roach88/recall/internal/payload"
)

// Sink is the durable append collaborator. When a stream has a sink, every
// accepted batch is appended to it before the in-memory log changes, and a
// sink error leaves the stream untouched.
type Sink interface {
	Append(ctx context.Context, stream StreamID, device DeviceID, events []WireEvent) error
}

// Validator checks a generic payload against a stream's event schema before
// it is decoded.
type Validator interface {
	Validate(v payload.Value) error
}

type options struct {
	logger    *slog.Logger
	validator Validator
}

// Option configures a Stream.
type Option func(*options)

// WithLogger sets the logger used for rejection warnings.
// Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithValidator sets a schema check run on every generic payload in
// AddGeneric.
func WithValidator(v Validator) Option {
	return func(o *options) {
		o.validator = v
	}
}

// Stream is the Event Stream Store: one Device Log per device for a single
// logical stream.
type Stream[E Event[E]] struct {
	id        StreamID
	logs      map[DeviceID]*DeviceLog[E]
	logger    *slog.Logger
	validator Validator
	sink      Sink
}

// NewStream creates an empty stream.
func NewStream[E Event[E]](id StreamID, opts ...Option) *Stream[E] {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Stream[E]{
		id:        id,
		logs:      make(map[DeviceID]*DeviceLog[E]),
		logger:    o.logger,
		validator: o.validator,
	}
}

// ID returns the stream id.
func (s *Stream[E]) ID() StreamID {
	return s.id
}

// SetSink attaches the durable append collaborator. Pass nil to detach.
func (s *Stream[E]) SetSink(sink Sink) {
	s.sink = sink
}

// Log returns a device's log, or nil if the device has no events yet.
func (s *Stream[E]) Log(device DeviceID) *DeviceLog[E] {
	return s.logs[device]
}

// Devices returns every device with at least one event, sorted.
func (s *Stream[E]) Devices() []DeviceID {
	return slices.Sorted(maps.Keys(s.logs))
}

// NumEventsPerDevice returns the per-device log lengths.
func (s *Stream[E]) NumEventsPerDevice() Counts {
	counts := make(Counts, len(s.logs))
	for device, log := range s.logs {
		counts[device] = log.Len()
	}
	return counts
}

// NumEvents returns the total number of events across all devices.
func (s *Stream[E]) NumEvents() int {
	total := 0
	for _, log := range s.logs {
		total += log.Len()
	}
	return total
}

// Events returns a copy of a device's events in index order.
func (s *Stream[E]) Events(device DeviceID) []Timestamped[E] {
	return slices.Clone(s.logs[device].After(0))
}

// Stamp wraps events as the next contiguous entries of device's log, all
// carrying the timestamp now. The result still has to go through Validate
// and Add.
func (s *Stream[E]) Stamp(device DeviceID, now time.Time, events ...E) []Timestamped[E] {
	next := s.logs[device].Len()
	out := make([]Timestamped[E], len(events))
	for i, ev := range events {
		out[i] = Timestamped[E]{
			Event:     ev,
			Timestamp: now.UTC(),
			Index:     EventIndex(next + i),
		}
	}
	return out
}

// Batch is a validated, index-sorted batch of events for one device.
// Only Validate produces a Batch.
type Batch[E Event[E]] struct {
	stream StreamID
	device DeviceID
	events []Timestamped[E]
}

// Device returns the device the batch belongs to.
func (b Batch[E]) Device() DeviceID { return b.device }

// Len returns the number of events in the batch.
func (b Batch[E]) Len() int { return len(b.events) }

// Events returns the batch events in index order.
func (b Batch[E]) Events() []Timestamped[E] { return b.events }

// Validate checks candidates against device's current log length.
//
// The batch is rejected in full (false, with a warning logged) if it is
// empty, if once sorted by index it has a gap, duplicate or backtrack, or if
// its lowest index is not the device's current log length.
func (s *Stream[E]) Validate(device DeviceID, candidates []Timestamped[E]) (Batch[E], bool) {
	sorted := slices.Clone(candidates)
	slices.SortStableFunc(sorted, func(a, b Timestamped[E]) int {
		return cmp.Compare(a.Index, b.Index)
	})
	if !s.checkIndices(device, indicesOf(sorted)) {
		return Batch[E]{}, false
	}
	for i := range sorted {
		sorted[i].Timestamp = sorted[i].Timestamp.UTC()
	}
	return Batch[E]{stream: s.id, device: device, events: sorted}, true
}

// Add inserts a validated batch and returns the number of events processed.
//
// The batch is re-validated first: if the log moved since Validate, Add
// returns (0, nil) and logs a warning. Because validation rejects any index
// already present, the count always equals the number of new events.
func (s *Stream[E]) Add(ctx context.Context, batch Batch[E]) (int, error) {
	if batch.stream != s.id {
		s.reject(batch.device, "batch validated for another stream", 0, 0)
		return 0, nil
	}
	if !s.checkIndices(batch.device, indicesOf(batch.events)) {
		return 0, nil
	}
	if err := s.insert(ctx, batch.device, batch.events); err != nil {
		return 0, err
	}
	return len(batch.events), nil
}

// insert persists to the sink (if any) and then appends in memory.
func (s *Stream[E]) insert(ctx context.Context, device DeviceID, events []Timestamped[E]) error {
	if s.sink != nil {
		wire, err := encodeEvents(events)
		if err != nil {
			return fmt.Errorf("add to %s: %w", s.id, err)
		}
		if err := s.sink.Append(ctx, s.id, device, wire); err != nil {
			return fmt.Errorf("add to %s: %w", s.id, err)
		}
	}

	log, ok := s.logs[device]
	if !ok {
		log = newDeviceLog[E]()
		s.logs[device] = log
	}
	log.append(events)
	return nil
}

// checkIndices applies the acceptance rule to index-sorted indices and logs
// the reason for any rejection.
func (s *Stream[E]) checkIndices(device DeviceID, indices []EventIndex) bool {
	have := s.logs[device].Len()
	if len(indices) == 0 {
		s.reject(device, "empty batch", have, 0)
		return false
	}
	if indices[0] != EventIndex(have) {
		s.reject(device, "batch does not start at log length", have, int(indices[0]))
		return false
	}
	for i := 1; i < len(indices); i++ {
		switch {
		case indices[i] == indices[i-1]:
			s.reject(device, "duplicate index in batch", have+i, int(indices[i]))
			return false
		case indices[i] != indices[i-1]+1:
			s.reject(device, "gap in batch", have+i, int(indices[i]))
			return false
		}
	}
	return true
}

func (s *Stream[E]) reject(device DeviceID, reason string, expected, got int) {
	s.logger.Warn("rejected event batch",
		"stream", s.id,
		"device", device,
		"reason", reason,
		"expected_index", expected,
		"got_index", got,
	)
}

func indicesOf[E Event[E]](events []Timestamped[E]) []EventIndex {
	out := make([]EventIndex, len(events))
	for i, ev := range events {
		out[i] = ev.Index
	}
	return out
}
