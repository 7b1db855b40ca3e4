package eventlog

import (
	"errors"
	"fmt"
)

// DecodeError reports a generic payload that could not be turned into the
// stream's concrete event type. It is the only hard failure of the erased
// interface: the batch it belongs to was not applied.
type DecodeError struct {
	Stream StreamID
	Device DeviceID
	Index  EventIndex
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Stream == "" {
		return fmt.Sprintf("decode event %d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("decode %s event %s/%d: %v", e.Stream, e.Device, e.Index, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err wraps a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
