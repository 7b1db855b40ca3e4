package httpsync

import "github.com/roach88/recall/internal/eventlog"

type streamsResponse struct {
	Streams []eventlog.StreamID `json:"streams"`
}

type countsResponse struct {
	Counts eventlog.Counts `json:"counts"`
}

type eventsBody struct {
	Events []eventlog.WireEvent `json:"events"`
}

type pushResponse struct {
	Accepted int `json:"accepted"`
}

// errorResponse is the body of every non-2xx answer. Stream, Device and
// Index are set only for decode failures.
type errorResponse struct {
	Error  string               `json:"error"`
	Stream eventlog.StreamID    `json:"stream,omitempty"`
	Device eventlog.DeviceID    `json:"device,omitempty"`
	Index  *eventlog.EventIndex `json:"index,omitempty"`
}
