package reconcile

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/recall/internal/eventlog"
	"github.com/roach88/recall/internal/metrics"
)

// Session syncs every stream either side holds between a local replica and
// one named peer.
type Session struct {
	Local  Local
	Remote Peer

	// PeerName keys the stored cursors. Required when Cursors is set.
	PeerName string

	// Cursors remembers what the peer held after earlier rounds, so streams
	// with the oldest unsynced events go first. Optional.
	Cursors CursorStore

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Report summarizes a session.
type Report struct {
	Streams []StreamReport

	// Skipped lists streams abandoned because a payload did not decode.
	Skipped []eventlog.StreamID

	// Ignored lists remote streams of kinds the local replica does not
	// handle. They are left alone.
	Ignored []eventlog.StreamID
}

// Pulled returns the total number of events pulled.
func (r Report) Pulled() int {
	n := 0
	for _, s := range r.Streams {
		n += s.Pulled
	}
	return n
}

// Pushed returns the total number of events pushed.
func (r Report) Pushed() int {
	n := 0
	for _, s := range r.Streams {
		n += s.Pushed
	}
	return n
}

type pending struct {
	id       eventlog.StreamID
	earliest time.Time
	ok       bool
}

// Run syncs all streams known to either side.
//
// A stream whose payloads fail to decode on either side is logged, recorded
// in Report.Skipped and left for a later round; any other error aborts the
// session and returns the partial report.
func (s *Session) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	report, err := s.run(ctx)
	result := metrics.ResultOK
	if err != nil {
		result = metrics.ResultError
	}
	s.Metrics.SyncRound(result, time.Since(start))
	return report, err
}

func (s *Session) run(ctx context.Context) (Report, error) {
	var report Report
	logger := s.logger()

	order, ignored, err := s.plan(ctx)
	report.Ignored = ignored
	if err != nil {
		return report, err
	}
	for _, id := range ignored {
		logger.Info("ignoring stream of unhandled kind",
			"stream", id,
			"peer", s.PeerName,
		)
	}

	for _, id := range order {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		sr, err := Stream(ctx, s.Local, s.Remote, id)
		if IsDecodeError(err) {
			logger.Warn("skipping stream",
				"stream", id,
				"peer", s.PeerName,
				"error", err,
			)
			report.Skipped = append(report.Skipped, id)
			continue
		}
		if err != nil {
			return report, err
		}
		report.Streams = append(report.Streams, sr)

		if s.Cursors != nil {
			if err := s.Cursors.SaveCursor(ctx, s.PeerName, id, sr.Remote); err != nil {
				return report, &SyncError{Code: ErrCodeCursor, Op: "save cursor", Stream: id, Err: err}
			}
		}
		logger.Debug("stream synced",
			"stream", id,
			"peer", s.PeerName,
			"pulled", sr.Pulled,
			"pushed", sr.Pushed,
			"rejected", sr.Rejected,
		)
	}
	return report, nil
}

// plan returns the union of both sides' streams, minus the remote streams
// the local replica does not accept, which it returns separately. Streams
// with unsynced local events come first, oldest first; the rest follow in
// id order.
func (s *Session) plan(ctx context.Context) (order, ignored []eventlog.StreamID, err error) {
	local, err := s.Local.Streams(ctx)
	if err != nil {
		return nil, nil, &SyncError{Code: ErrCodeTransport, Op: "local streams", Err: err}
	}
	remote, err := s.Remote.Streams(ctx)
	if err != nil {
		return nil, nil, &SyncError{Code: ErrCodeTransport, Op: "remote streams", Err: err}
	}
	ids := append(slices.Clone(local), remote...)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	plan := make([]pending, 0, len(ids))
	for _, id := range ids {
		if !s.Local.Accepts(id) {
			ignored = append(ignored, id)
			continue
		}
		p := pending{id: id}
		if s.Cursors != nil {
			synced, err := s.Cursors.Cursor(ctx, s.PeerName, id)
			if err != nil {
				return nil, ignored, &SyncError{Code: ErrCodeCursor, Op: "load cursor", Stream: id, Err: err}
			}
			p.earliest, p.ok, err = s.Local.EarliestUnsynced(ctx, id, synced)
			if err != nil {
				return nil, ignored, classify("earliest unsynced", id, "", err)
			}
		}
		plan = append(plan, p)
	}

	slices.SortStableFunc(plan, func(a, b pending) int {
		switch {
		case a.ok && !b.ok:
			return -1
		case !a.ok && b.ok:
			return 1
		case a.ok && b.ok:
			if c := a.earliest.Compare(b.earliest); c != 0 {
				return c
			}
		}
		return cmp.Compare(a.id, b.id)
	})

	order = make([]eventlog.StreamID, len(plan))
	for i, p := range plan {
		order[i] = p.id
	}
	return order, ignored, nil
}

func (s *Session) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
