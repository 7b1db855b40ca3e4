package eventlog

import (
	"sync"

	"github.com/google/uuid"
)

// DeviceIDGenerator produces identities for new device installs.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type DeviceIDGenerator interface {
	Generate() DeviceID
}

// UUIDv7Generator generates time-sortable UUIDv7 device ids.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
// Panics if the system random source fails.
func (UUIDv7Generator) Generate() DeviceID {
	return DeviceID(uuid.Must(uuid.NewV7()).String())
}

// FixedGenerator returns predetermined device ids in order.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []DeviceID
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order and panics
// once they are exhausted.
func NewFixedGenerator(ids ...DeviceID) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined id.
func (g *FixedGenerator) Generate() DeviceID {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all device ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
