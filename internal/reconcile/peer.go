package reconcile

import (
	"context"
	"time"

	"github.com/roach88/recall/internal/eventlog"
)

// Peer is one side of a sync.
type Peer interface {
	// Streams lists the streams the peer holds.
	Streams(ctx context.Context) ([]eventlog.StreamID, error)

	// Counts returns the peer's per-device log lengths for stream. An
	// unknown stream yields empty counts.
	Counts(ctx context.Context, stream eventlog.StreamID) (eventlog.Counts, error)

	// Events returns device's events after the first skip.
	Events(ctx context.Context, stream eventlog.StreamID, device eventlog.DeviceID, skip int) ([]eventlog.WireEvent, error)

	// Push offers events to the peer, which validates them against its own
	// log. A soft rejection returns (0, nil); a payload that does not
	// decode returns an error satisfying eventlog.IsDecodeError.
	Push(ctx context.Context, stream eventlog.StreamID, device eventlog.DeviceID, events []eventlog.WireEvent) (int, error)
}

// Local is the replica a Session runs on. It can also tell how old the
// oldest unsynced event in a stream is.
type Local interface {
	Peer

	// Accepts reports whether the replica can hold stream, i.e. whether
	// its kind is one the replica decodes.
	Accepts(stream eventlog.StreamID) bool

	EarliestUnsynced(ctx context.Context, stream eventlog.StreamID, synced eventlog.Counts) (time.Time, bool, error)
}
