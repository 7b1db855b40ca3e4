package eventlog

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// note is a minimal event type for tests.
type note struct {
	Text string `json:"text"`
}

func (n note) Compare(o note) int {
	return strings.Compare(n.Text, o.Text)
}

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func at(sec int) time.Time {
	return t0.Add(time.Duration(sec) * time.Second)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStream(t *testing.T) *Stream[note] {
	t.Helper()
	return NewStream[note]("note/test", WithLogger(quietLogger()))
}

// ev builds a timestamped note at second sec with the given index.
func ev(text string, sec int, idx EventIndex) Timestamped[note] {
	return Timestamped[note]{Event: note{Text: text}, Timestamp: at(sec), Index: idx}
}

// mustAdd validates and adds, failing the test on rejection or error.
func mustAdd(t *testing.T, s *Stream[note], device DeviceID, events ...Timestamped[note]) {
	t.Helper()
	batch, ok := s.Validate(device, events)
	require.True(t, ok, "batch for %s should validate", device)
	n, err := s.Add(context.Background(), batch)
	require.NoError(t, err)
	require.Equal(t, len(events), n)
}

func collect(s *Stream[note]) []string {
	var out []string
	for m := range s.Merged() {
		out = append(out, string(m.Device)+":"+m.Event.Text)
	}
	return out
}
