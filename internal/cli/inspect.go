package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/recall/internal/deck"
	"github.com/roach88/recall/internal/eventlog"
	"github.com/roach88/recall/internal/payload"
	"github.com/roach88/recall/internal/replica"
)

// StreamSummary is one stream's per-device log lengths.
type StreamSummary struct {
	Stream eventlog.StreamID `json:"stream"`
	Counts eventlog.Counts   `json:"counts"`
	Total  int               `json:"total"`
}

// InspectResult lists every stream this device holds.
type InspectResult struct {
	Device  eventlog.DeviceID `json:"device"`
	Streams []StreamSummary   `json:"streams"`
}

// WriteText implements Texter.
func (r InspectResult) WriteText(w io.Writer, verbose bool) {
	fmt.Fprintf(w, "Device %s\n", r.Device)
	if len(r.Streams) == 0 {
		fmt.Fprintln(w, "No streams.")
		return
	}
	for _, s := range r.Streams {
		fmt.Fprintf(w, "%s: %d event(s) from %d device(s)\n", s.Stream, s.Total, len(s.Counts))
		if verbose {
			writeCounts(w, s.Counts)
		}
	}
}

// StreamDetail is one stream with its derived state.
type StreamDetail struct {
	StreamSummary
	State       *deck.State `json:"state,omitempty"`
	Fingerprint string      `json:"fingerprint,omitempty"`
}

// WriteText implements Texter.
func (d StreamDetail) WriteText(w io.Writer, verbose bool) {
	fmt.Fprintf(w, "%s: %d event(s)\n", d.Stream, d.Total)
	writeCounts(w, d.Counts)
	if d.State == nil {
		return
	}

	fmt.Fprintf(w, "Cards: %d, reviews: %d\n", len(d.State.Cards), d.State.Reviews)
	for _, id := range d.State.Weakest {
		c := d.State.Cards[id]
		fmt.Fprintf(w, "  %-16s %s / %s (reviews %d, lapses %d)\n", id, c.Front, c.Back, c.Reviews, c.Lapses)
	}
	if verbose {
		fmt.Fprintf(w, "Fingerprint: %s\n", d.Fingerprint)
	}
}

func writeCounts(w io.Writer, counts eventlog.Counts) {
	for _, dev := range counts.Devices() {
		fmt.Fprintf(w, "  %s: %d\n", dev, counts[dev])
	}
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect [stream]",
		Short: "Show stored streams and derived state",
		Long: `Show what this device holds.

Without arguments, lists every stream with its per-device event counts.
With a stream, also folds the events into the stream's state; for decks
that is the cards, review totals and the weakest cards first.

Examples:
  recall inspect
  recall inspect spanish
  recall inspect deck/spanish --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return inspectAll(rootOpts, cmd)
			}
			return inspectStream(rootOpts, cmd, args[0])
		},
	}
	return cmd
}

func inspectAll(opts *RootOptions, cmd *cobra.Command) error {
	a, err := openApp(opts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	ids, err := a.replica.Streams(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list streams", err)
	}

	result := InspectResult{Device: a.device, Streams: make([]StreamSummary, 0, len(ids))}
	for _, id := range ids {
		counts, err := a.replica.Counts(ctx, id)
		if err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("failed to load %s", id), err)
		}
		result.Streams = append(result.Streams, StreamSummary{Stream: id, Counts: counts, Total: counts.Total()})
	}
	return opts.formatter(cmd).Success(result)
}

func inspectStream(opts *RootOptions, cmd *cobra.Command, name string) error {
	id, err := parseStream(name)
	if err != nil {
		return err
	}

	a, err := openApp(opts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	counts, err := a.replica.Counts(ctx, id)
	if err != nil {
		if isUnknownKind(err) {
			return WrapExitError(ExitCommandError, "cannot inspect stream", err)
		}
		return WrapExitError(ExitFailure, fmt.Sprintf("failed to load %s", id), err)
	}
	detail := StreamDetail{StreamSummary: StreamSummary{Stream: id, Counts: counts, Total: counts.Total()}}

	if id.Kind() == deck.Kind {
		var state deck.State
		err := replica.View(ctx, a.replica, id, func(s *eventlog.Stream[deck.Event]) error {
			state = deck.StateFor(s)
			return nil
		})
		if err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("failed to fold %s", id), err)
		}
		fp, err := payload.FingerprintOf(payload.DomainState, state)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to fingerprint state", err)
		}
		detail.State = &state
		detail.Fingerprint = fp
	}
	return opts.formatter(cmd).Success(detail)
}
