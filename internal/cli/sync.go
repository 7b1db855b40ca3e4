package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/recall/internal/config"
	"github.com/roach88/recall/internal/eventlog"
	"github.com/roach88/recall/internal/httpsync"
	"github.com/roach88/recall/internal/reconcile"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	URL string // overrides the configured peer
}

// SyncStreamResult is one stream's part of a sync.
type SyncStreamResult struct {
	Stream   eventlog.StreamID `json:"stream"`
	Pulled   int               `json:"pulled"`
	Pushed   int               `json:"pushed"`
	Rejected int               `json:"rejected,omitempty"`
}

// SyncResult summarizes a sync session with one peer.
type SyncResult struct {
	Peer    string              `json:"peer"`
	Device  eventlog.DeviceID   `json:"device"`
	Streams []SyncStreamResult  `json:"streams"`
	Skipped []eventlog.StreamID `json:"skipped,omitempty"`
	Ignored []eventlog.StreamID `json:"ignored,omitempty"`
	Pulled  int                 `json:"pulled"`
	Pushed  int                 `json:"pushed"`
}

// WriteText implements Texter.
func (r SyncResult) WriteText(w io.Writer, verbose bool) {
	fmt.Fprintf(w, "Synced with %s: pulled %d, pushed %d event(s) across %d stream(s)\n",
		r.Peer, r.Pulled, r.Pushed, len(r.Streams))
	for _, s := range r.Streams {
		if !verbose && s.Pulled == 0 && s.Pushed == 0 && s.Rejected == 0 {
			continue
		}
		fmt.Fprintf(w, "  %s: pulled %d, pushed %d", s.Stream, s.Pulled, s.Pushed)
		if s.Rejected > 0 {
			fmt.Fprintf(w, ", %d batch(es) rejected", s.Rejected)
		}
		fmt.Fprintln(w)
	}
	for _, id := range r.Skipped {
		fmt.Fprintf(w, "  %s: skipped (undecodable events)\n", id)
	}
	if verbose {
		for _, id := range r.Ignored {
			fmt.Fprintf(w, "  %s: ignored (kind not handled here)\n", id)
		}
	}
}

func newSyncResult(peer string, device eventlog.DeviceID, report reconcile.Report) SyncResult {
	r := SyncResult{
		Peer:    peer,
		Device:  device,
		Streams: make([]SyncStreamResult, 0, len(report.Streams)),
		Skipped: report.Skipped,
		Ignored: report.Ignored,
		Pulled:  report.Pulled(),
		Pushed:  report.Pushed(),
	}
	for _, s := range report.Streams {
		r.Streams = append(r.Streams, SyncStreamResult{
			Stream:   s.Stream,
			Pulled:   s.Pulled,
			Pushed:   s.Pushed,
			Rejected: s.Rejected,
		})
	}
	return r
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync [peer]",
		Short: "Sync every stream with a peer",
		Long: `Exchange missing events with a peer running "recall serve".

Both sides report how many events they hold from each device, then each
sends only what the other lacks. Streams with the oldest unsynced local
changes go first. The peer is named in the config file; without a name the
first configured peer is used.

Exit codes:
  0 - Sync completed (undecodable streams are reported and skipped)
  1 - Sync aborted (peer unreachable, store failure)
  2 - Command error (no such peer, bad config)

Examples:
  recall sync
  recall sync laptop
  recall sync --url http://10.0.0.5:7420`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return runSync(opts, cmd, name)
		},
	}

	cmd.Flags().StringVar(&opts.URL, "url", "", "peer base URL (overrides the config)")

	return cmd
}

func runSync(opts *SyncOptions, cmd *cobra.Command, name string) error {
	a, err := loadApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	peer, err := resolvePeer(a.cfg, name, opts.URL)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to resolve peer", err)
	}
	client, err := httpsync.NewClient(peer.URL, nil)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid peer url", err)
	}

	if err := a.start(); err != nil {
		return err
	}
	ctx := cmd.Context()
	cursors, err := a.cursors(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open sync cursors", err)
	}

	session := &reconcile.Session{
		Local:    a.replica,
		Remote:   client,
		PeerName: peer.Name,
		Cursors:  cursors,
		Logger:   a.logger,
	}
	a.logger.Debug("sync starting", "peer", peer.Name, "url", peer.URL)

	report, err := session.Run(ctx)
	result := newSyncResult(peer.Name, a.device, report)
	f := opts.formatter(cmd)
	if err != nil {
		if ferr := f.Failure("E_SYNC", err.Error(), result); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitFailure, "sync failed", err)
	}
	return f.Success(result)
}

// resolvePeer picks the peer to talk to. An explicit URL wins; it is
// named after the peer argument when given, otherwise after the URL.
func resolvePeer(cfg *config.Config, name, url string) (config.Peer, error) {
	if url != "" {
		if name == "" {
			name = url
		}
		return config.Peer{Name: name, URL: url}, nil
	}
	return cfg.Peer(name)
}
