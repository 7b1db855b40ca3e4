package eventlog

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// DeviceID identifies one physical device install.
type DeviceID string

// ParseDeviceID checks that s is non-empty and contains no NUL bytes.
// Device ids end up inside storage keys next to NUL separators, so one
// device must never be a key prefix of another.
func ParseDeviceID(s string) (DeviceID, error) {
	if s == "" {
		return "", fmt.Errorf("invalid device id: empty")
	}
	if strings.ContainsRune(s, 0) {
		return "", fmt.Errorf("invalid device id %q: contains NUL", s)
	}
	return DeviceID(s), nil
}

// EventIndex is an event's position in its device's log, starting at 0.
type EventIndex uint64

// StreamID names one logical stream, formatted "<kind>/<name>".
// The kind selects the concrete event type a replica decodes into.
type StreamID string

// ParseStreamID checks that s has a non-empty kind and name and contains no
// NUL bytes (storage backends use NUL as a key separator).
func ParseStreamID(s string) (StreamID, error) {
	kind, name, ok := strings.Cut(s, "/")
	if !ok || kind == "" || name == "" {
		return "", fmt.Errorf("invalid stream id %q: want <kind>/<name>", s)
	}
	if strings.ContainsRune(s, 0) {
		return "", fmt.Errorf("invalid stream id %q: contains NUL", s)
	}
	return StreamID(s), nil
}

// Kind returns the part of the id before the first slash.
func (id StreamID) Kind() string {
	kind, _, _ := strings.Cut(string(id), "/")
	return kind
}

// Name returns the part of the id after the first slash.
func (id StreamID) Name() string {
	_, name, _ := strings.Cut(string(id), "/")
	return name
}

// Counts maps each device to the number of its events a replica holds.
// It is both the count-exchange message and the sync cursor.
type Counts map[DeviceID]int

// Total returns the sum of all per-device counts.
func (c Counts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// Devices returns the devices in c, sorted.
func (c Counts) Devices() []DeviceID {
	return slices.Sorted(maps.Keys(c))
}

// Clone returns a copy of c. A nil Counts clones to an empty map.
func (c Counts) Clone() Counts {
	out := make(Counts, len(c))
	maps.Copy(out, c)
	return out
}

// Event is the constraint on domain payloads: a total order over values of
// the same type. Events must also round-trip losslessly through JSON.
type Event[E any] interface {
	Compare(other E) int
}

// Timestamped wraps an event with its creation time and per-device index.
type Timestamped[E Event[E]] struct {
	Event     E          `json:"event"`
	Timestamp time.Time  `json:"timestamp"`
	Index     EventIndex `json:"index"`
}

// Compare orders by timestamp, then index, then event payload.
// Every replica uses this order, which is what makes merges commutative.
func (t Timestamped[E]) Compare(o Timestamped[E]) int {
	if c := t.Timestamp.Compare(o.Timestamp); c != 0 {
		return c
	}
	if c := cmp.Compare(t.Index, o.Index); c != 0 {
		return c
	}
	return t.Event.Compare(o.Event)
}
