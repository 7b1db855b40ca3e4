package eventlog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/recall/internal/payload"
)

// WireEvent is a Timestamped event with its payload in generic form. It is
// the record exchanged by sync and written by persistence backends.
type WireEvent struct {
	Event     payload.Value
	Timestamp time.Time
	Index     EventIndex
}

type wireJSON struct {
	Event     json.RawMessage `json:"event"`
	Timestamp string          `json:"timestamp"`
	Index     EventIndex      `json:"index"`
}

// MarshalJSON encodes {"event":…,"timestamp":…,"index":…} with the
// timestamp in UTC RFC 3339 with nanoseconds.
func (w WireEvent) MarshalJSON() ([]byte, error) {
	ev, err := payload.Marshal(w.Event)
	if err != nil {
		return nil, fmt.Errorf("marshal wire event %d: %w", w.Index, err)
	}
	return json.Marshal(wireJSON{
		Event:     ev,
		Timestamp: w.Timestamp.UTC().Format(time.RFC3339Nano),
		Index:     w.Index,
	})
}

// UnmarshalJSON implements json.Unmarshaler. A missing or null event, or a
// float anywhere in the payload, is a *DecodeError carrying the record's
// index; the caller fills in Stream and Device. Broken framing is a plain
// error.
func (w *WireEvent) UnmarshalJSON(data []byte) error {
	var raw wireJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal wire event: %w", err)
	}
	if len(bytes.TrimSpace(raw.Event)) == 0 {
		return &DecodeError{Index: raw.Index, Err: errors.New("missing event")}
	}
	ev, err := payload.Parse(raw.Event)
	if err != nil {
		return &DecodeError{Index: raw.Index, Err: err}
	}
	ts, err := time.Parse(time.RFC3339Nano, raw.Timestamp)
	if err != nil {
		return fmt.Errorf("unmarshal wire event %d: %w", raw.Index, err)
	}
	*w = WireEvent{Event: ev, Timestamp: ts.UTC(), Index: raw.Index}
	return nil
}

// Encode converts a typed event into its wire form.
func Encode[E Event[E]](ev Timestamped[E]) (WireEvent, error) {
	v, err := payload.Encode(ev.Event)
	if err != nil {
		return WireEvent{}, fmt.Errorf("encode event %d: %w", ev.Index, err)
	}
	return WireEvent{Event: v, Timestamp: ev.Timestamp.UTC(), Index: ev.Index}, nil
}

// Decode converts a wire event into its typed form.
func Decode[E Event[E]](w WireEvent) (Timestamped[E], error) {
	var ev E
	if err := payload.Decode(w.Event, &ev); err != nil {
		return Timestamped[E]{}, err
	}
	return Timestamped[E]{Event: ev, Timestamp: w.Timestamp.UTC(), Index: w.Index}, nil
}

func encodeEvents[E Event[E]](events []Timestamped[E]) ([]WireEvent, error) {
	out := make([]WireEvent, len(events))
	for i, ev := range events {
		w, err := Encode(ev)
		if err != nil {
			return nil, err
		}
		out[i] = w
	}
	return out, nil
}
