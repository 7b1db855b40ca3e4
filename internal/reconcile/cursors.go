package reconcile

import (
	"context"
	"sync"

	"github.com/roach88/recall/internal/eventlog"
)

// CursorStore remembers, per peer and stream, how many events of each
// device the peer is known to hold. Saved counts never decrease.
type CursorStore interface {
	Cursor(ctx context.Context, peer string, stream eventlog.StreamID) (eventlog.Counts, error)
	SaveCursor(ctx context.Context, peer string, stream eventlog.StreamID, counts eventlog.Counts) error
}

type cursorKey struct {
	peer   string
	stream eventlog.StreamID
}

// MemoryCursors is a process-local CursorStore.
//
// Thread-safety: safe for concurrent use.
type MemoryCursors struct {
	mu      sync.Mutex
	cursors map[cursorKey]eventlog.Counts
}

// NewMemoryCursors returns an empty store.
func NewMemoryCursors() *MemoryCursors {
	return &MemoryCursors{cursors: make(map[cursorKey]eventlog.Counts)}
}

// Cursor implements CursorStore.
func (m *MemoryCursors) Cursor(_ context.Context, peer string, stream eventlog.StreamID) (eventlog.Counts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursors[cursorKey{peer, stream}].Clone(), nil
}

// SaveCursor implements CursorStore.
func (m *MemoryCursors) SaveCursor(_ context.Context, peer string, stream eventlog.StreamID, counts eventlog.Counts) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := cursorKey{peer, stream}
	cur := m.cursors[key]
	if cur == nil {
		cur = make(eventlog.Counts, len(counts))
		m.cursors[key] = cur
	}
	for device, n := range counts {
		cur[device] = max(cur[device], n)
	}
	return nil
}
