package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/recall/internal/deck"
	"github.com/roach88/recall/internal/eventlog"
	"github.com/roach88/recall/internal/replica"
)

// CardResult reports events recorded by a card command.
type CardResult struct {
	Stream eventlog.StreamID   `json:"stream"`
	Device eventlog.DeviceID   `json:"device"`
	Kind   string              `json:"kind"`
	Card   string              `json:"card"`
	Index  eventlog.EventIndex `json:"index"`
}

// WriteText implements Texter.
func (r CardResult) WriteText(w io.Writer, verbose bool) {
	fmt.Fprintf(w, "%s %s in %s\n", r.Kind, r.Card, r.Stream)
	if verbose {
		fmt.Fprintf(w, "  device %s, index %d\n", r.Device, r.Index)
	}
}

// NewCardCommand creates the card command group.
func NewCardCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "card",
		Short: "Record card changes on this device",
		Long: `Record card changes in a deck on this device.

Changes are appended to this device's log and reach other devices on the
next sync. A deck is named either "deck/<name>" or just "<name>".

Examples:
  recall card add spanish gato "el gato" cat
  recall card review spanish gato 4
  recall card remove deck/spanish gato`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <deck> <card> <front> <back>",
		Short: "Add a card, or replace its text",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return recordCard(rootOpts, cmd, args[0], deck.Add(args[1], args[2], args[3]))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "review <deck> <card> <grade>",
		Short: "Record a review graded 0 (forgot) to 5 (perfect)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			grade, err := strconv.Atoi(args[2])
			if err != nil {
				return WrapExitError(ExitCommandError, "grade must be an integer", err)
			}
			return recordCard(rootOpts, cmd, args[0], deck.Review(args[1], grade))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <deck> <card>",
		Short: "Remove a card",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return recordCard(rootOpts, cmd, args[0], deck.Remove(args[1]))
		},
	})

	return cmd
}

func recordCard(opts *RootOptions, cmd *cobra.Command, deckName string, ev deck.Event) error {
	id, err := parseStream(deckName)
	if err != nil {
		return err
	}
	if id.Kind() != deck.Kind {
		return NewExitError(ExitCommandError, fmt.Sprintf("%s is not a deck stream", id))
	}

	a, err := openApp(opts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	stored, err := replica.Record(cmd.Context(), a.replica, id, ev)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to record", err)
	}

	return opts.formatter(cmd).Success(CardResult{
		Stream: id,
		Device: a.device,
		Kind:   ev.Kind,
		Card:   ev.Card,
		Index:  stored[0].Index,
	})
}
