// Package pebble is a store.Backend on the Pebble LSM
// (github.com/cockroachdb/pebble).
//
// Key layout, all components NUL-terminated except the index:
//
//	n \0 <stream> \0 <device>             -> uint64 log length (big endian)
//	e \0 <stream> \0 <device> \0 <index>  -> wire event JSON
//
// The index is 8 bytes big endian so a prefix scan returns a device's
// events in index order. Stream ids never contain NUL.
package pebble

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/roach88/recall/internal/eventlog"
	"github.com/roach88/recall/internal/store"
)

const (
	countTag = 'n'
	eventTag = 'e'
)

var _ store.Backend = (*Store)(nil)

// Store is a Pebble-backed store.Backend.
//
// Thread-safety: safe for concurrent use. Appends are serialized so the
// length check and the batch commit cannot interleave.
type Store struct {
	mu     sync.RWMutex
	db     *pebble.DB
	closed bool
}

// Open opens or creates a database in dir. opts may be nil.
func Open(dir string, opts *pebble.Options) (*Store, error) {
	if opts == nil {
		opts = &pebble.Options{}
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// Close implements store.Backend.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Streams implements store.Backend.
func (s *Store) Streams(ctx context.Context) ([]eventlog.StreamID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}

	streams := []eventlog.StreamID{}
	err := s.scan([]byte{countTag, 0}, func(key, _ []byte) error {
		stream, _, ok := bytes.Cut(key[2:], []byte{0})
		if !ok {
			return fmt.Errorf("malformed count key %q", key)
		}
		id := eventlog.StreamID(stream)
		if n := len(streams); n == 0 || streams[n-1] != id {
			streams = append(streams, id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list streams: %w", err)
	}
	return streams, nil
}

// Devices implements store.Backend.
func (s *Store) Devices(ctx context.Context, stream eventlog.StreamID) ([]eventlog.DeviceID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}

	prefix := streamPrefix(countTag, stream)
	devices := []eventlog.DeviceID{}
	err := s.scan(prefix, func(key, _ []byte) error {
		devices = append(devices, eventlog.DeviceID(key[len(prefix):]))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list devices of %s: %w", stream, err)
	}
	return devices, nil
}

// Load implements store.Backend.
func (s *Store) Load(ctx context.Context, stream eventlog.StreamID, device eventlog.DeviceID) ([]eventlog.WireEvent, error) {
	if err := store.CheckDevice(device); err != nil {
		return nil, fmt.Errorf("load %s: %w", stream, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}

	events := []eventlog.WireEvent{}
	err := s.scan(eventPrefix(stream, device), func(_, value []byte) error {
		var ev eventlog.WireEvent
		if err := ev.UnmarshalJSON(value); err != nil {
			return err
		}
		events = append(events, ev)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load %s/%s: %w", stream, device, err)
	}
	return events, nil
}

// Append implements store.Backend. Events and the new length are written
// in one synced batch.
func (s *Store) Append(ctx context.Context, stream eventlog.StreamID, device eventlog.DeviceID, events []eventlog.WireEvent) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("append %s/%s: %w", stream, device, err)
	}
	if err := store.CheckDevice(device); err != nil {
		return fmt.Errorf("append %s: %w", stream, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}

	ckey := countKey(stream, device)
	have, err := s.count(ckey)
	if err != nil {
		return fmt.Errorf("append %s/%s: %w", stream, device, err)
	}
	if err := store.CheckContiguous(int(have), events); err != nil {
		return fmt.Errorf("append %s/%s: %w", stream, device, err)
	}
	if len(events) == 0 {
		return nil
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	for _, ev := range events {
		data, err := ev.MarshalJSON()
		if err != nil {
			return fmt.Errorf("append %s/%s: %w", stream, device, err)
		}
		if err := batch.Set(eventKey(stream, device, ev.Index), data, nil); err != nil {
			return fmt.Errorf("append %s/%s: %w", stream, device, err)
		}
	}
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], have+uint64(len(events)))
	if err := batch.Set(ckey, n[:], nil); err != nil {
		return fmt.Errorf("append %s/%s: %w", stream, device, err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("append %s/%s: commit: %w", stream, device, err)
	}
	return nil
}

func (s *Store) count(key []byte) (uint64, error) {
	val, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()
	if len(val) != 8 {
		return 0, fmt.Errorf("malformed count value for %q", key)
	}
	return binary.BigEndian.Uint64(val), nil
}

// scan calls fn for every key with prefix, in key order. Slices passed to
// fn are only valid during the call.
func (s *Store) scan(prefix []byte, fn func(key, value []byte) error) error {
	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return err
	}
	for valid := it.First(); valid; valid = it.Next() {
		if err := fn(it.Key(), it.Value()); err != nil {
			it.Close()
			return err
		}
	}
	if err := it.Error(); err != nil {
		it.Close()
		return err
	}
	return it.Close()
}

func streamPrefix(tag byte, stream eventlog.StreamID) []byte {
	key := make([]byte, 0, len(stream)+3)
	key = append(key, tag, 0)
	key = append(key, stream...)
	return append(key, 0)
}

func countKey(stream eventlog.StreamID, device eventlog.DeviceID) []byte {
	return append(streamPrefix(countTag, stream), device...)
}

func eventPrefix(stream eventlog.StreamID, device eventlog.DeviceID) []byte {
	key := append(streamPrefix(eventTag, stream), device...)
	return append(key, 0)
}

func eventKey(stream eventlog.StreamID, device eventlog.DeviceID, idx eventlog.EventIndex) []byte {
	return binary.BigEndian.AppendUint64(eventPrefix(stream, device), uint64(idx))
}

// prefixEnd returns the smallest key greater than every key with prefix.
func prefixEnd(prefix []byte) []byte {
	end := slices.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
