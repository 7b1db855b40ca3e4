// Package feed publishes stream change notifications outside the replica.
//
// Notifications are advisory: a subscriber that misses one recovers by
// syncing. The replica never waits on a Notifier while holding a stream
// lock; it hands changes to a Dispatcher, which delivers them on its own
// goroutine.
package feed

import (
	"context"
	"errors"

	"github.com/roach88/recall/internal/eventlog"
)

// Change reports that a device's log in a stream grew.
type Change struct {
	Stream eventlog.StreamID `json:"stream"`
	Device eventlog.DeviceID `json:"device"`
	// Added is the number of events appended.
	Added int `json:"added"`
	// Count is the device's log length after the append.
	Count int `json:"count"`
	// Origin is "local" for events recorded on this replica and "remote"
	// for events received by sync.
	Origin string `json:"origin"`
}

// Notifier delivers changes.
type Notifier interface {
	Notify(ctx context.Context, c Change) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, c Change) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, c Change) error {
	return f(ctx, c)
}

// Multi fans a change out to every notifier and joins their errors.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, c Change) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
