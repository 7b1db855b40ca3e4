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

// ReplayStreamResult holds the replay result for a single stream.
type ReplayStreamResult struct {
	Stream        eventlog.StreamID `json:"stream"`
	Events        int               `json:"events"`
	Devices       int               `json:"devices"`
	Fingerprint   string            `json:"fingerprint"`
	Deterministic bool              `json:"deterministic"`
	// Mismatch names the pair of replays that disagreed.
	Mismatch string `json:"mismatch,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Streams          []ReplayStreamResult `json:"streams"`
	TotalStreams     int                  `json:"total_streams"`
	AllDeterministic bool                 `json:"all_deterministic"`
}

// WriteText implements Texter.
func (r ReplayResult) WriteText(w io.Writer, verbose bool) {
	if r.TotalStreams == 0 {
		fmt.Fprintln(w, "No deck streams found.")
		return
	}
	fmt.Fprintf(w, "Replay Summary: %d stream(s)\n", r.TotalStreams)
	fmt.Fprintln(w)

	for _, s := range r.Streams {
		status := "✓"
		if !s.Deterministic {
			status = "✗"
		}
		fmt.Fprintf(w, "%s Stream: %s\n", status, s.Stream)
		fmt.Fprintf(w, "  Events: %d from %d device(s)\n", s.Events, s.Devices)
		if verbose {
			fmt.Fprintf(w, "  Fingerprint: %s\n", s.Fingerprint)
		}
		if !s.Deterministic {
			fmt.Fprintf(w, "  Warning: %s\n", s.Mismatch)
		}
		fmt.Fprintln(w)
	}

	if r.AllDeterministic {
		fmt.Fprintln(w, "✓ All streams verified deterministic")
	}
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay [stream]",
		Short: "Replay deck streams and verify determinism",
		Long: `Replay stored deck streams and verify the derived state is deterministic.

Each stream is folded from its merged event sequence twice, and once more
by applying events one at a time to the previous state. All three must
produce the same state fingerprint.

Exit codes:
  0 - All streams are deterministic
  1 - Determinism verification failed (differences detected)
  2 - Command error (config or store not readable)

Examples:
  recall replay
  recall replay spanish
  recall replay --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(rootOpts, cmd, args)
		},
	}
	return cmd
}

func runReplay(opts *RootOptions, cmd *cobra.Command, args []string) error {
	var only eventlog.StreamID
	if len(args) == 1 {
		id, err := parseStream(args[0])
		if err != nil {
			return err
		}
		if id.Kind() != deck.Kind {
			return NewExitError(ExitCommandError, fmt.Sprintf("%s is not a deck stream", id))
		}
		only = id
	}

	a, err := openApp(opts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	ids := []eventlog.StreamID{only}
	if only == "" {
		all, err := a.replica.Streams(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list streams", err)
		}
		ids = ids[:0]
		for _, id := range all {
			if id.Kind() == deck.Kind {
				ids = append(ids, id)
			}
		}
	}

	result := ReplayResult{
		Streams:          make([]ReplayStreamResult, 0, len(ids)),
		TotalStreams:     len(ids),
		AllDeterministic: true,
	}
	for _, id := range ids {
		var sr ReplayStreamResult
		err := replica.View(ctx, a.replica, id, func(s *eventlog.Stream[deck.Event]) error {
			var err error
			sr, err = replayStream(s)
			return err
		})
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay %s", id), err)
		}
		result.Streams = append(result.Streams, sr)
		if !sr.Deterministic {
			result.AllDeterministic = false
		}
	}

	f := opts.formatter(cmd)
	if !result.AllDeterministic {
		if err := f.Failure("E_DETERMINISM", "determinism verification failed", result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return f.Success(result)
}

// replayStream folds s twice and applies it incrementally once.
func replayStream(s *eventlog.Stream[deck.Event]) (ReplayStreamResult, error) {
	first, err := payload.FingerprintOf(payload.DomainState, deck.StateFor(s))
	if err != nil {
		return ReplayStreamResult{}, err
	}
	second, err := payload.FingerprintOf(payload.DomainState, deck.StateFor(s))
	if err != nil {
		return ReplayStreamResult{}, err
	}

	incremental := deck.Machine{}.Finalize(deck.Partial{})
	for m := range s.Merged() {
		incremental = deck.Apply(incremental, m.Timestamped)
	}
	third, err := payload.FingerprintOf(payload.DomainState, incremental)
	if err != nil {
		return ReplayStreamResult{}, err
	}

	r := ReplayStreamResult{
		Stream:        s.ID(),
		Events:        s.NumEvents(),
		Devices:       len(s.Devices()),
		Fingerprint:   first,
		Deterministic: true,
	}
	switch {
	case first != second:
		r.Deterministic = false
		r.Mismatch = "two folds of the same log differ"
	case first != third:
		r.Deterministic = false
		r.Mismatch = "incremental apply differs from fold"
	}
	return r, nil
}
