package eventlog

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"
)

// Erased is the type-erased view of a Stream. Heterogeneous streams are held
// in one registry and synced through this interface without knowing their
// event type.
type Erased interface {
	ID() StreamID
	Devices() []DeviceID
	NumEventsPerDevice() Counts
	NumEvents() int

	// EventValues returns the events of device after the first skip, in
	// index order, in generic form.
	EventValues(device DeviceID, skip int) ([]WireEvent, error)

	// ValidateGeneric applies the same index checks as Validate.
	ValidateGeneric(device DeviceID, candidates []WireEvent) (GenericBatch, bool)

	// AddGeneric decodes and adds a validated batch. A payload that fails
	// the schema or does not decode returns *DecodeError and nothing is
	// added.
	AddGeneric(ctx context.Context, batch GenericBatch) (int, error)

	// EarliestUnsyncedTimestamp returns the minimum timestamp among events
	// beyond each device's synced count, or false if there are none.
	EarliestUnsyncedTimestamp(synced Counts) (time.Time, bool)

	SetSink(sink Sink)
}

var _ Erased = (*Stream[noopEvent])(nil)

type noopEvent struct{}

func (noopEvent) Compare(noopEvent) int { return 0 }

// GenericBatch is a validated, index-sorted batch of wire events for one
// device. Only ValidateGeneric produces a GenericBatch.
type GenericBatch struct {
	stream StreamID
	device DeviceID
	events []WireEvent
}

// Device returns the device the batch belongs to.
func (b GenericBatch) Device() DeviceID { return b.device }

// Len returns the number of events in the batch.
func (b GenericBatch) Len() int { return len(b.events) }

// Events returns the batch events in index order.
func (b GenericBatch) Events() []WireEvent { return b.events }

// EventValues implements Erased.
func (s *Stream[E]) EventValues(device DeviceID, skip int) ([]WireEvent, error) {
	if skip < 0 {
		skip = 0
	}
	out, err := encodeEvents(s.logs[device].After(skip))
	if err != nil {
		return nil, fmt.Errorf("event values %s/%s: %w", s.id, device, err)
	}
	return out, nil
}

// ValidateGeneric implements Erased.
func (s *Stream[E]) ValidateGeneric(device DeviceID, candidates []WireEvent) (GenericBatch, bool) {
	sorted := slices.Clone(candidates)
	slices.SortStableFunc(sorted, func(a, b WireEvent) int {
		return cmp.Compare(a.Index, b.Index)
	})
	indices := make([]EventIndex, len(sorted))
	for i, w := range sorted {
		indices[i] = w.Index
	}
	if !s.checkIndices(device, indices) {
		return GenericBatch{}, false
	}
	return GenericBatch{stream: s.id, device: device, events: sorted}, true
}

// AddGeneric implements Erased.
//
// Every payload is checked and decoded before anything is inserted, so a
// *DecodeError always means zero mutation.
func (s *Stream[E]) AddGeneric(ctx context.Context, batch GenericBatch) (int, error) {
	if batch.stream != s.id {
		s.reject(batch.device, "batch validated for another stream", 0, 0)
		return 0, nil
	}
	indices := make([]EventIndex, len(batch.events))
	for i, w := range batch.events {
		indices[i] = w.Index
	}
	if !s.checkIndices(batch.device, indices) {
		return 0, nil
	}

	typed := make([]Timestamped[E], len(batch.events))
	for i, w := range batch.events {
		if s.validator != nil && w.Event != nil {
			if err := s.validator.Validate(w.Event); err != nil {
				return 0, &DecodeError{Stream: s.id, Device: batch.device, Index: w.Index, Err: err}
			}
		}
		ev, err := Decode[E](w)
		if err != nil {
			return 0, &DecodeError{Stream: s.id, Device: batch.device, Index: w.Index, Err: err}
		}
		typed[i] = ev
	}

	if err := s.insert(ctx, batch.device, typed); err != nil {
		return 0, err
	}
	return len(typed), nil
}

// EarliestUnsyncedTimestamp implements Erased.
func (s *Stream[E]) EarliestUnsyncedTimestamp(synced Counts) (time.Time, bool) {
	var (
		earliest time.Time
		found    bool
	)
	for device, log := range s.logs {
		for _, ev := range log.After(synced[device]) {
			if !found || ev.Timestamp.Before(earliest) {
				earliest = ev.Timestamp
				found = true
			}
		}
	}
	return earliest, found
}
