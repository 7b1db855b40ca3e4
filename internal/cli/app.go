package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/roach88/recall/internal/config"
	"github.com/roach88/recall/internal/deck"
	"github.com/roach88/recall/internal/eventlog"
	"github.com/roach88/recall/internal/feed"
	"github.com/roach88/recall/internal/reconcile"
	"github.com/roach88/recall/internal/replica"
	"github.com/roach88/recall/internal/schema"
	"github.com/roach88/recall/internal/store"
	pebblestore "github.com/roach88/recall/internal/store/pebble"
	"github.com/roach88/recall/internal/store/sqlite"
)

// File names inside the data directory.
const (
	sqliteFile = "recall.db"
	pebbleDir  = "pebble"
)

var deckSchema = schema.MustCompile("deck.cue", deck.Schema)

// app is the environment every store-backed command works in.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	device  eventlog.DeviceID
	backend store.Backend
	replica *replica.Replica

	closers []func() error
}

// openApp loads the environment and starts the replica with defaults.
func openApp(opts *RootOptions, cmd *cobra.Command) (*app, error) {
	a, err := loadApp(opts, cmd)
	if err != nil {
		return nil, err
	}
	if err := a.start(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// loadApp reads the config, resolves the device id and opens the backend.
// The replica is created by start, so callers can add options first.
func loadApp(opts *RootOptions, cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	device, err := cfg.DeviceID(eventlog.UUIDv7Generator{})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to resolve device id", err)
	}

	backend, err := openBackend(cfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}
	logger.Debug("store open", "backend", cfg.Store.Backend, "data_dir", cfg.DataDir, "device", device)

	return &app{
		cfg:     cfg,
		logger:  logger,
		device:  device,
		backend: backend,
		closers: []func() error{backend.Close},
	}, nil
}

func (a *app) start(extra ...replica.Option) error {
	opts := append([]replica.Option{
		replica.WithLogger(a.logger),
		replica.WithResident(a.cfg.Store.Resident),
	}, extra...)

	r, err := replica.New(a.device, a.backend, opts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create replica", err)
	}
	if err := replica.Register[deck.Event](r, deck.Kind, replica.WithSchema(deckSchema)); err != nil {
		return WrapExitError(ExitCommandError, "failed to register deck streams", err)
	}
	a.replica = r
	return nil
}

// onClose registers fn to run, in reverse order, when the app closes.
func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases everything the app opened. Errors are logged.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("error during shutdown", "error", err)
		}
	}
	a.closers = nil
}

func openBackend(cfg *config.Config) (store.Backend, error) {
	if cfg.Store.Backend == config.BackendMemory {
		return store.NewMemory(), nil
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}
	if cfg.Store.Backend == config.BackendPebble {
		return pebblestore.Open(filepath.Join(cfg.DataDir, pebbleDir), nil)
	}
	return sqlite.Open(filepath.Join(cfg.DataDir, sqliteFile))
}

// cursors picks where sync cursors live: Redis when configured, the SQLite
// database when that is the backend, otherwise process memory.
func (a *app) cursors(ctx context.Context) (reconcile.CursorStore, error) {
	if len(a.cfg.Redis.Addrs) > 0 {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    a.cfg.Redis.Addrs,
			Password: a.cfg.Redis.Password,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.onClose(rdb.Close)
		return reconcile.NewRedisCursors(rdb, a.cfg.Redis.Prefix), nil
	}
	if s, ok := a.backend.(*sqlite.Store); ok {
		return s, nil
	}
	a.logger.Debug("sync cursors are not persisted", "backend", a.cfg.Store.Backend)
	return reconcile.NewMemoryCursors(), nil
}

// notifier builds the change feed: a debug log line per change, plus Kafka
// when brokers are configured.
func (a *app) notifier() (feed.Notifier, error) {
	logged := feed.NotifierFunc(func(_ context.Context, c feed.Change) error {
		a.logger.Debug("stream changed",
			"stream", c.Stream,
			"device", c.Device,
			"added", c.Added,
			"count", c.Count,
			"origin", c.Origin,
		)
		return nil
	})
	if len(a.cfg.Kafka.Brokers) == 0 {
		return logged, nil
	}

	k, err := feed.DialKafka(a.cfg.Kafka.Brokers, a.cfg.Kafka.Topic)
	if err != nil {
		return nil, err
	}
	a.onClose(k.Close)
	return feed.Multi{logged, k}, nil
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// parseStream accepts "kind/name" or a bare deck name.
func parseStream(s string) (eventlog.StreamID, error) {
	if !strings.Contains(s, "/") {
		s = deck.Kind + "/" + s
	}
	id, err := eventlog.ParseStreamID(s)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "invalid stream", err)
	}
	return id, nil
}

// isUnknownKind reports whether err means no kind is registered.
func isUnknownKind(err error) bool {
	return errors.Is(err, replica.ErrUnknownKind)
}
