package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Encode converts a typed Go value into its generic form by way of its JSON
// encoding. Values whose JSON contains floats are rejected.
func Encode(v any) (Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	pv, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return pv, nil
}

// Decode converts a generic value into out, which must be a pointer.
// Fields not present on the target type are an error, so a payload that was
// written for a different event schema fails loudly instead of decoding to a
// zero value.
func Decode(v Value, out any) error {
	data, err := marshalSorted(v)
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
