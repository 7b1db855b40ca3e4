package eventlog

import (
	"slices"
)

// DeviceLog is one device's append-only event sequence.
//
// INVARIANTS:
//   - events[i].Index == i for every i (no gaps, no duplicates)
//   - events are never removed or reordered once appended
//
// The log is kept in index order because that is what sync skips over. The
// merge needs events in Timestamped order instead; when a device's clock
// never went backwards the two orders agree and no copy is made.
type DeviceLog[E Event[E]] struct {
	events    []Timestamped[E]
	monotonic bool
	sorted    []Timestamped[E] // merge view, rebuilt lazily when !monotonic
}

func newDeviceLog[E Event[E]]() *DeviceLog[E] {
	return &DeviceLog[E]{monotonic: true}
}

// Len returns the number of events in the log, which is also the next index
// the device must produce.
func (l *DeviceLog[E]) Len() int {
	if l == nil {
		return 0
	}
	return len(l.events)
}

// At returns the event with the given index.
func (l *DeviceLog[E]) At(i int) Timestamped[E] {
	return l.events[i]
}

// After returns the events following the first skip, in index order.
// The returned slice must not be modified.
func (l *DeviceLog[E]) After(skip int) []Timestamped[E] {
	if l == nil || skip >= len(l.events) {
		return nil
	}
	return l.events[max(skip, 0):]
}

// append adds already validated events. Caller guarantees contiguity.
func (l *DeviceLog[E]) append(batch []Timestamped[E]) {
	for _, ev := range batch {
		if n := len(l.events); n > 0 && ev.Timestamp.Before(l.events[n-1].Timestamp) {
			l.monotonic = false
		}
		l.events = append(l.events, ev)
	}
	l.sorted = nil
}

// ordered returns the events sorted by Timestamped order.
func (l *DeviceLog[E]) ordered() []Timestamped[E] {
	if l.monotonic {
		return l.events
	}
	if l.sorted == nil {
		l.sorted = slices.Clone(l.events)
		slices.SortFunc(l.sorted, Timestamped[E].Compare)
	}
	return l.sorted
}
