package reconcile

import (
	"context"
	"maps"
	"slices"

	"github.com/roach88/recall/internal/eventlog"
)

// StreamReport summarizes one stream's round.
type StreamReport struct {
	Stream eventlog.StreamID

	// Pulled is the number of remote events the local side accepted.
	Pulled int
	// Pushed is the number of local events the remote side accepted.
	Pushed int
	// Rejected counts non-empty batches a receiver dropped by validation.
	Rejected int

	// Remote is what the remote side is known to hold after the round.
	// It is the value a Session stores as the peer's cursor.
	Remote eventlog.Counts
}

// Stream reconciles one stream between local and remote.
//
// Both sides report counts first. Then, device by device in sorted order,
// whatever the remote has beyond the local count is pulled and pushed into
// local, and whatever local has beyond the remote count is pushed to the
// remote. A receiver that rejects a batch leaves its count unchanged; the
// next round retries from there.
func Stream(ctx context.Context, local, remote Peer, id eventlog.StreamID) (StreamReport, error) {
	report := StreamReport{Stream: id}

	lc, err := local.Counts(ctx, id)
	if err != nil {
		return report, classify("local counts", id, "", err)
	}
	rc, err := remote.Counts(ctx, id)
	if err != nil {
		return report, classify("remote counts", id, "", err)
	}
	report.Remote = rc.Clone()

	devices := make(map[eventlog.DeviceID]struct{}, len(lc)+len(rc))
	for d := range lc {
		devices[d] = struct{}{}
	}
	for d := range rc {
		devices[d] = struct{}{}
	}

	for _, device := range slices.Sorted(maps.Keys(devices)) {
		have, want := lc[device], rc[device]
		switch {
		case want > have:
			n, offered, err := transfer(ctx, remote, local, id, device, have)
			if err != nil {
				return report, classify("pull", id, device, err)
			}
			report.Pulled += n
			if n == 0 && offered > 0 {
				report.Rejected++
			}
		case have > want:
			n, offered, err := transfer(ctx, local, remote, id, device, want)
			if err != nil {
				return report, classify("push", id, device, err)
			}
			report.Pushed += n
			if n == 0 && offered > 0 {
				report.Rejected++
			}
			report.Remote[device] = want + n
		}
	}
	return report, nil
}

// transfer sends from's events of device after skip to to. It returns how
// many were accepted and how many were offered.
func transfer(ctx context.Context, from, to Peer, id eventlog.StreamID, device eventlog.DeviceID, skip int) (int, int, error) {
	events, err := from.Events(ctx, id, device, skip)
	if err != nil {
		return 0, 0, err
	}
	if len(events) == 0 {
		return 0, 0, nil
	}
	n, err := to.Push(ctx, id, device, events)
	return n, len(events), err
}
