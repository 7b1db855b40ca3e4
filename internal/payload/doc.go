// Package payload is the generic structured value that event payloads take
// when they cross a type boundary: sync messages, persistence records and
// the type-erased stream interface all carry payload.Value instead of a
// concrete event type.
//
// Key constraints:
//   - NO floats. Numbers are int64 only so every replica encodes the same
//     payload to the same bytes.
//   - Object iteration is always in RFC 8785 key order (UTF-16 code units).
//   - MarshalCanonical is the only encoding used for fingerprints.
//
// payload imports nothing internal.
package payload
