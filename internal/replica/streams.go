package replica

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/recall/internal/eventlog"
	"github.com/roach88/recall/internal/metrics"
)

// withStream runs fn on the resident stream id under its mutex, loading it
// from the backend first if needed.
func (r *Replica) withStream(ctx context.Context, id eventlog.StreamID, fn func(s eventlog.Erased) error) error {
	if _, err := eventlog.ParseStreamID(string(id)); err != nil {
		return err
	}
	k, err := r.kindOf(id)
	if err != nil {
		return err
	}

	mu, _ := r.locks.LoadOrCompute(id, func() *sync.Mutex { return &sync.Mutex{} })
	mu.Lock()
	defer mu.Unlock()

	s, ok := r.resident.Get(id)
	if !ok {
		s, err = r.load(ctx, k, id)
		if err != nil {
			return err
		}
		r.resident.Add(id, s)
		r.cfg.metrics.SetResident(r.resident.Len())
	}
	return fn(s)
}

// load rebuilds a stream from the backend. Stored records go through the
// same validation as synced ones; the sink is attached only afterwards so
// replay does not write them back.
func (r *Replica) load(ctx context.Context, k kind, id eventlog.StreamID) (eventlog.Erased, error) {
	s := k.newStream(id)

	devices, err := r.backend.Devices(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", id, err)
	}
	for _, device := range devices {
		records, err := r.backend.Load(ctx, id, device)
		if err != nil {
			return nil, fmt.Errorf("load %s/%s: %w", id, device, err)
		}
		if len(records) == 0 {
			continue
		}
		batch, ok := s.ValidateGeneric(device, records)
		if !ok {
			return nil, fmt.Errorf("load %s/%s: stored records are not a contiguous log", id, device)
		}
		if _, err := s.AddGeneric(ctx, batch); err != nil {
			return nil, fmt.Errorf("load %s/%s: %w", id, device, err)
		}
	}

	s.SetSink(r.backend)
	r.cfg.logger.Debug("stream loaded",
		"stream", id,
		"devices", len(devices),
		"events", s.NumEvents(),
	)
	return s, nil
}

// Open makes id resident, loading it from the backend if needed.
func (r *Replica) Open(ctx context.Context, id eventlog.StreamID) error {
	return r.withStream(ctx, id, func(eventlog.Erased) error { return nil })
}

// View runs fn with the typed stream id under the stream's mutex. fn must
// not keep the stream after it returns.
func View[E eventlog.Event[E]](ctx context.Context, r *Replica, id eventlog.StreamID, fn func(s *eventlog.Stream[E]) error) error {
	return r.withStream(ctx, id, func(s eventlog.Erased) error {
		typed, ok := s.(*eventlog.Stream[E])
		if !ok {
			return fmt.Errorf("view %s: %w", id, ErrWrongType)
		}
		return fn(typed)
	})
}

// Record appends events to the local device's log in id, stamped with the
// replica clock. It returns the events as stored.
func Record[E eventlog.Event[E]](ctx context.Context, r *Replica, id eventlog.StreamID, events ...E) ([]eventlog.Timestamped[E], error) {
	if len(events) == 0 {
		return nil, nil
	}
	k, err := r.kindOf(id)
	if err != nil {
		return nil, err
	}

	var (
		stored []eventlog.Timestamped[E]
		count  int
	)
	err = View(ctx, r, id, func(s *eventlog.Stream[E]) error {
		stamped := s.Stamp(r.device, r.cfg.now(), events...)
		if k.validator != nil {
			for _, ev := range stamped {
				w, err := eventlog.Encode(ev)
				if err != nil {
					return err
				}
				if err := k.validator.Validate(w.Event); err != nil {
					return fmt.Errorf("record %s: event %d: %w", id, ev.Index, err)
				}
			}
		}
		batch, ok := s.Validate(r.device, stamped)
		if !ok {
			return fmt.Errorf("record %s: batch rejected", id)
		}
		if _, err := s.Add(ctx, batch); err != nil {
			return err
		}
		stored = batch.Events()
		count = s.Log(r.device).Len()
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.accepted(ctx, id, r.device, len(stored), count, metrics.OriginLocal)
	return stored, nil
}
