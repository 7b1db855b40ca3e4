package reconcile

import (
	"errors"
	"fmt"

	"github.com/roach88/recall/internal/eventlog"
)

// SyncError describes a failed step of a sync round.
//
// A Session skips a stream on ErrCodeDecode and aborts on anything else.
type SyncError struct {
	// Code identifies the error category.
	Code SyncErrorCode

	// Op is the step that failed ("counts", "pull", "push", ...).
	Op string

	Stream eventlog.StreamID

	// Device is empty for stream-level steps.
	Device eventlog.DeviceID

	Err error
}

// SyncErrorCode categorizes sync errors.
type SyncErrorCode string

const (
	// ErrCodeTransport indicates a failure talking to either side.
	ErrCodeTransport SyncErrorCode = "TRANSPORT"

	// ErrCodeDecode indicates the receiving side could not decode a payload.
	ErrCodeDecode SyncErrorCode = "DECODE"

	// ErrCodeCursor indicates a failure loading or saving a sync cursor.
	ErrCodeCursor SyncErrorCode = "CURSOR"
)

// Error implements the error interface.
func (e *SyncError) Error() string {
	if e.Device != "" {
		return fmt.Sprintf("%s: %s %s/%s: %v", e.Code, e.Op, e.Stream, e.Device, e.Err)
	}
	return fmt.Sprintf("%s: %s %s: %v", e.Code, e.Op, e.Stream, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// IsDecodeError returns true if err is a sync error caused by a payload
// that did not decode. Uses errors.As to handle wrapped errors.
func IsDecodeError(err error) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code == ErrCodeDecode
	}
	return false
}

// classify wraps a Peer error, recognizing decode failures.
func classify(op string, stream eventlog.StreamID, device eventlog.DeviceID, err error) error {
	code := ErrCodeTransport
	if eventlog.IsDecodeError(err) {
		code = ErrCodeDecode
	}
	return &SyncError{Code: code, Op: op, Stream: stream, Device: device, Err: err}
}
