// Package eventlog holds per-device event logs and the stream store that
// aggregates them.
//
// A Device Log is the append-only, gap-free sequence of events one device
// produced. A Stream aggregates one Device Log per device for a single
// logical entity (a deck, a document) and owns validation, insertion and
// the globally merged iteration over all devices.
//
// CRITICAL PATTERNS:
//
// Contiguous acceptance:
// A batch for a device is accepted only if, sorted by index, it is
// internally contiguous and starts exactly at the device's current length.
// Anything else is rejected in full with a warning and no mutation. This is
// what makes any two replicas that eventually see the same events end up
// with identical logs, whatever order the batches arrived in.
//
// Deterministic merge:
// The global sequence orders events by (timestamp, index, event) and breaks
// remaining ties by device id. The order depends only on the set of events,
// never on arrival order.
//
// Type erasure:
// Every *Stream[E] satisfies Erased, which speaks payload.Value instead of
// E. Concrete decoding happens only in AddGeneric; a payload that does not
// decode is the one hard failure (*DecodeError).
//
// Streams are plain single-threaded data structures with no locking.
// Callers serialize mutation of a stream themselves.
package eventlog
