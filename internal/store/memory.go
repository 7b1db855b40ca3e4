package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/roach88/recall/internal/eventlog"
)

// Memory is a Backend that keeps records in process memory.
//
// Thread-safety: safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	streams map[eventlog.StreamID]map[eventlog.DeviceID][]eventlog.WireEvent
	closed  bool
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{streams: make(map[eventlog.StreamID]map[eventlog.DeviceID][]eventlog.WireEvent)}
}

// Streams implements Backend.
func (m *Memory) Streams(ctx context.Context) ([]eventlog.StreamID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return slices.Sorted(maps.Keys(m.streams)), nil
}

// Devices implements Backend.
func (m *Memory) Devices(ctx context.Context, stream eventlog.StreamID) ([]eventlog.DeviceID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return slices.Sorted(maps.Keys(m.streams[stream])), nil
}

// Load implements Backend.
func (m *Memory) Load(ctx context.Context, stream eventlog.StreamID, device eventlog.DeviceID) ([]eventlog.WireEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return slices.Clone(m.streams[stream][device]), nil
}

// Append implements Backend.
func (m *Memory) Append(ctx context.Context, stream eventlog.StreamID, device eventlog.DeviceID, events []eventlog.WireEvent) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("append %s/%s: %w", stream, device, err)
	}
	if err := CheckDevice(device); err != nil {
		return fmt.Errorf("append %s: %w", stream, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	devices := m.streams[stream]
	if err := CheckContiguous(len(devices[device]), events); err != nil {
		return fmt.Errorf("append %s/%s: %w", stream, device, err)
	}
	if len(events) == 0 {
		return nil
	}
	if devices == nil {
		devices = make(map[eventlog.DeviceID][]eventlog.WireEvent)
		m.streams[stream] = devices
	}
	devices[device] = append(devices[device], events...)
	return nil
}

// Close implements Backend. Further calls fail.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
