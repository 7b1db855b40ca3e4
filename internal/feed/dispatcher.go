package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrClosed is returned by Notify once the dispatcher is closed.
var ErrClosed = errors.New("dispatcher closed")

// Dispatcher is a FIFO queue of changes drained by a single Run goroutine.
//
// The queue is unbounded so Publish never blocks a caller that holds a
// stream lock. Publish is safe from any goroutine; Run must be called by
// exactly one.
type Dispatcher struct {
	notifier Notifier
	logger   *slog.Logger

	mu      sync.Mutex
	changes []Change
	closed  bool
	signal  chan struct{} // buffered, size 1; closed by Close
}

// NewDispatcher creates a dispatcher delivering to notifier. A nil logger
// uses slog.Default().
func NewDispatcher(notifier Notifier, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		notifier: notifier,
		logger:   logger,
		changes:  make([]Change, 0, 64),
		signal:   make(chan struct{}, 1),
	}
}

// Publish queues c for delivery. Returns false once the dispatcher is
// closed.
func (d *Dispatcher) Publish(c Change) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}
	d.changes = append(d.changes, c)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case d.signal <- struct{}{}:
	default:
	}
	return true
}

// Notify implements Notifier by queueing, so a Dispatcher can stand in
// wherever a Notifier is expected. The change is dropped with ErrClosed
// after Close.
func (d *Dispatcher) Notify(_ context.Context, c Change) error {
	if !d.Publish(c) {
		return ErrClosed
	}
	return nil
}

func (d *Dispatcher) tryDequeue() (Change, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.changes) == 0 {
		return Change{}, false
	}
	c := d.changes[0]
	if len(d.changes) == 1 {
		d.changes = d.changes[:0]
	} else {
		d.changes = d.changes[1:]
	}
	return c, true
}

// Len returns the number of queued changes.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.changes)
}

// Run delivers queued changes until ctx is canceled or the dispatcher is
// closed and drained. Delivery errors are logged and the change dropped.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Debug("dispatcher starting")

	for {
		if c, ok := d.tryDequeue(); ok {
			if err := d.notifier.Notify(ctx, c); err != nil {
				d.logger.Warn("change notification failed",
					"stream", c.Stream,
					"device", c.Device,
					"count", c.Count,
					"error", err,
				)
			}
			continue
		}

		select {
		case <-ctx.Done():
			d.logger.Debug("dispatcher stopping: context cancelled")
			d.Close()
			return ctx.Err()

		case <-d.signal:
			// The signal channel is closed by Close, so a closed and
			// empty queue ends the loop.
			d.mu.Lock()
			done := d.closed && len(d.changes) == 0
			d.mu.Unlock()
			if done {
				d.logger.Debug("dispatcher stopping: closed")
				return nil
			}
		}
	}
}

// Close stops accepting changes. Run drains what is queued, then returns.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true
	close(d.signal)
}
