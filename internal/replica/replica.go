package replica

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/recall/internal/eventlog"
	"github.com/roach88/recall/internal/feed"
	"github.com/roach88/recall/internal/metrics"
	"github.com/roach88/recall/internal/schema"
	"github.com/roach88/recall/internal/store"
)

// DefaultResident is the default number of streams kept in memory.
const DefaultResident = 128

// ErrUnknownKind is returned for a stream whose kind was never registered.
var ErrUnknownKind = errors.New("unknown stream kind")

// ErrWrongType is returned when a stream is accessed with an event type
// other than the one its kind was registered with.
var ErrWrongType = errors.New("stream has a different event type")

type config struct {
	logger   *slog.Logger
	metrics  *metrics.Metrics
	notifier feed.Notifier
	now      func() time.Time
	resident int
}

// Option configures a Replica.
type Option func(*config)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithMetrics records counters on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithNotifier sends a feed.Change for every accepted batch. Pass a
// feed.Dispatcher so delivery happens off the stream lock.
func WithNotifier(n feed.Notifier) Option {
	return func(c *config) { c.notifier = n }
}

// WithClock sets the wall clock used to stamp local events.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// WithResident bounds the number of streams held in memory.
func WithResident(n int) Option {
	return func(c *config) { c.resident = n }
}

// kind is a registered event type.
type kind struct {
	newStream func(id eventlog.StreamID) eventlog.Erased
	validator eventlog.Validator
}

// Replica is the local device's set of streams.
//
// Thread-safety: all methods are safe for concurrent use.
type Replica struct {
	device  eventlog.DeviceID
	backend store.Backend
	cfg     config

	kindsMu sync.RWMutex
	kinds   map[string]kind

	resident *lru.Cache[eventlog.StreamID, eventlog.Erased]
	locks    *xsync.MapOf[eventlog.StreamID, *sync.Mutex]
	listing  singleflight.Group
}

// New creates a replica for device on backend. The replica does not own
// the backend; closing it is the caller's job.
func New(device eventlog.DeviceID, backend store.Backend, opts ...Option) (*Replica, error) {
	if _, err := eventlog.ParseDeviceID(string(device)); err != nil {
		return nil, fmt.Errorf("new replica: %w", err)
	}
	cfg := config{
		logger:   slog.Default(),
		now:      time.Now,
		resident: DefaultResident,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &Replica{
		device:  device,
		backend: backend,
		cfg:     cfg,
		kinds:   make(map[string]kind),
		locks:   xsync.NewMapOf[eventlog.StreamID, *sync.Mutex](),
	}
	cache, err := lru.NewWithEvict(cfg.resident, func(id eventlog.StreamID, _ eventlog.Erased) {
		r.cfg.logger.Debug("stream evicted", "stream", id)
	})
	if err != nil {
		return nil, fmt.Errorf("new replica: %w", err)
	}
	r.resident = cache
	return r, nil
}

// Device returns the local device id.
func (r *Replica) Device() eventlog.DeviceID {
	return r.device
}

// Resident returns the number of streams currently in memory.
func (r *Replica) Resident() int {
	return r.resident.Len()
}

type registration struct {
	schema *schema.Schema
}

// RegisterOption configures a kind registration.
type RegisterOption func(*registration)

// WithSchema checks every incoming and locally recorded payload of the kind
// against s.
func WithSchema(s *schema.Schema) RegisterOption {
	return func(reg *registration) { reg.schema = s }
}

// Register binds kind to event type E. Streams "<kind>/<name>" are then
// created and decoded as E. Registering a kind twice is an error.
func Register[E eventlog.Event[E]](r *Replica, kindName string, opts ...RegisterOption) error {
	if kindName == "" {
		return errors.New("register: empty kind")
	}
	var reg registration
	for _, opt := range opts {
		opt(&reg)
	}

	k := kind{}
	streamOpts := []eventlog.Option{eventlog.WithLogger(r.cfg.logger)}
	if reg.schema != nil {
		k.validator = reg.schema
		streamOpts = append(streamOpts, eventlog.WithValidator(reg.schema))
	}
	k.newStream = func(id eventlog.StreamID) eventlog.Erased {
		return eventlog.NewStream[E](id, streamOpts...)
	}

	r.kindsMu.Lock()
	defer r.kindsMu.Unlock()
	if _, ok := r.kinds[kindName]; ok {
		return fmt.Errorf("register %s: kind already registered", kindName)
	}
	r.kinds[kindName] = k
	return nil
}

func (r *Replica) kindOf(id eventlog.StreamID) (kind, error) {
	r.kindsMu.RLock()
	defer r.kindsMu.RUnlock()
	k, ok := r.kinds[id.Kind()]
	if !ok {
		return kind{}, fmt.Errorf("%w: %q (stream %s)", ErrUnknownKind, id.Kind(), id)
	}
	return k, nil
}

func (r *Replica) registered(id eventlog.StreamID) bool {
	_, err := r.kindOf(id)
	return err == nil
}
