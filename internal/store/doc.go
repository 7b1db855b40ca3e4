// Package store defines the persistence contract for device logs and an
// in-memory implementation of it.
//
// A Backend holds, per stream and device, the wire records of every event
// accepted so far. Appends are all-or-nothing and durable before they
// return; a backend must reject an append that does not continue the
// stored log exactly (ErrNotContiguous), so a buggy caller cannot persist a
// log the in-memory stream would refuse to rebuild.
//
// Loads return records in index order.
//
// Implementations:
//   - Memory (this package): tests and ephemeral replicas
//   - sqlite: github.com/mattn/go-sqlite3, WAL mode
//   - pebble: github.com/cockroachdb/pebble LSM
package store
