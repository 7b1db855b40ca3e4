package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/recall/internal/eventlog"
)

// ErrNotContiguous is returned by Append when the records do not start at
// the stored log length or skip an index.
var ErrNotContiguous = errors.New("append is not contiguous with stored log")

// ErrClosed is returned by every call on a closed backend.
var ErrClosed = errors.New("store is closed")

// Backend is the durable log collaborator. It satisfies eventlog.Sink.
type Backend interface {
	// Streams returns every stream with at least one record, sorted.
	Streams(ctx context.Context) ([]eventlog.StreamID, error)

	// Devices returns every device with records in stream, sorted.
	Devices(ctx context.Context, stream eventlog.StreamID) ([]eventlog.DeviceID, error)

	// Load returns device's records in stream in index order.
	Load(ctx context.Context, stream eventlog.StreamID, device eventlog.DeviceID) ([]eventlog.WireEvent, error)

	// Append durably stores events, which must continue the device's log.
	Append(ctx context.Context, stream eventlog.StreamID, device eventlog.DeviceID, events []eventlog.WireEvent) error

	Close() error
}

var _ eventlog.Sink = Backend(nil)

// ErrInvalidDevice is returned when appending under a device id that could
// collide with another device's keys.
var ErrInvalidDevice = errors.New("invalid device id")

// CheckDevice rejects device ids that eventlog.ParseDeviceID rejects.
func CheckDevice(device eventlog.DeviceID) error {
	if _, err := eventlog.ParseDeviceID(string(device)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDevice, err)
	}
	return nil
}

// CheckContiguous verifies that events, in order, carry indices have,
// have+1, and so on.
func CheckContiguous(have int, events []eventlog.WireEvent) error {
	for i, ev := range events {
		if want := eventlog.EventIndex(have + i); ev.Index != want {
			return fmt.Errorf("%w: record %d has index %d, want %d", ErrNotContiguous, i, ev.Index, want)
		}
	}
	return nil
}
