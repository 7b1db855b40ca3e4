package replica

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/recall/internal/eventlog"
	"github.com/roach88/recall/internal/feed"
	"github.com/roach88/recall/internal/metrics"
	"github.com/roach88/recall/internal/reconcile"
)

var _ reconcile.Local = (*Replica)(nil)

// Streams implements reconcile.Peer. It lists stored streams of registered
// kinds. Concurrent callers share one backend scan.
func (r *Replica) Streams(ctx context.Context) ([]eventlog.StreamID, error) {
	v, err, _ := r.listing.Do("streams", func() (any, error) {
		return r.backend.Streams(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("list streams: %w", err)
	}
	all := v.([]eventlog.StreamID)
	out := make([]eventlog.StreamID, 0, len(all))
	for _, id := range all {
		if r.registered(id) {
			out = append(out, id)
		}
	}
	return out, nil
}

// Accepts implements reconcile.Local: only streams of registered kinds can
// be opened here.
func (r *Replica) Accepts(id eventlog.StreamID) bool {
	if _, err := eventlog.ParseStreamID(string(id)); err != nil {
		return false
	}
	return r.registered(id)
}

// Counts implements reconcile.Peer.
func (r *Replica) Counts(ctx context.Context, id eventlog.StreamID) (eventlog.Counts, error) {
	var counts eventlog.Counts
	err := r.withStream(ctx, id, func(s eventlog.Erased) error {
		counts = s.NumEventsPerDevice()
		return nil
	})
	return counts, err
}

// Events implements reconcile.Peer.
func (r *Replica) Events(ctx context.Context, id eventlog.StreamID, device eventlog.DeviceID, skip int) ([]eventlog.WireEvent, error) {
	if _, err := eventlog.ParseDeviceID(string(device)); err != nil {
		return nil, err
	}
	var events []eventlog.WireEvent
	err := r.withStream(ctx, id, func(s eventlog.Erased) error {
		var err error
		events, err = s.EventValues(device, skip)
		return err
	})
	return events, err
}

// Push implements reconcile.Peer. It is the only way events from another
// device enter the replica: the batch is validated against the local log,
// decoded, persisted and added under the stream's mutex.
func (r *Replica) Push(ctx context.Context, id eventlog.StreamID, device eventlog.DeviceID, events []eventlog.WireEvent) (int, error) {
	if _, err := eventlog.ParseDeviceID(string(device)); err != nil {
		return 0, err
	}
	var n, count int
	err := r.withStream(ctx, id, func(s eventlog.Erased) error {
		batch, ok := s.ValidateGeneric(device, events)
		if !ok {
			r.cfg.metrics.Rejected(id.Kind())
			return nil
		}
		var err error
		n, err = s.AddGeneric(ctx, batch)
		if eventlog.IsDecodeError(err) {
			r.cfg.metrics.DecodeFailed(id.Kind())
		}
		if err != nil {
			return err
		}
		if n == 0 {
			r.cfg.metrics.Rejected(id.Kind())
		}
		count = s.NumEventsPerDevice()[device]
		return nil
	})
	if err != nil {
		return 0, err
	}
	r.accepted(ctx, id, device, n, count, metrics.OriginRemote)
	return n, nil
}

// EarliestUnsynced implements reconcile.Local.
func (r *Replica) EarliestUnsynced(ctx context.Context, id eventlog.StreamID, synced eventlog.Counts) (time.Time, bool, error) {
	var (
		ts    time.Time
		found bool
	)
	err := r.withStream(ctx, id, func(s eventlog.Erased) error {
		ts, found = s.EarliestUnsyncedTimestamp(synced)
		return nil
	})
	return ts, found, err
}

// accepted records metrics and publishes a change for n new events. It
// runs after the stream mutex is released.
func (r *Replica) accepted(ctx context.Context, id eventlog.StreamID, device eventlog.DeviceID, n, count int, origin string) {
	if n == 0 {
		return
	}
	r.cfg.metrics.Accepted(id.Kind(), origin, n)
	if r.cfg.notifier == nil {
		return
	}
	c := feed.Change{Stream: id, Device: device, Added: n, Count: count, Origin: origin}
	if err := r.cfg.notifier.Notify(ctx, c); err != nil {
		r.cfg.logger.Warn("change notification failed",
			"stream", id,
			"device", device,
			"error", err,
		)
	}
}
