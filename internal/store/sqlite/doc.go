// Package sqlite is a store.Backend on SQLite (github.com/mattn/go-sqlite3).
//
// # Critical Patterns
//
// Contiguous appends:
//   - Append runs in one transaction that checks the stored length first
//   - PRIMARY KEY (stream, device, idx) backs the check at the schema level
//
// Deterministic reads:
//   - Every query includes ORDER BY with BINARY collation
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=FULL: an append is durable when Append returns
//   - busy_timeout=5000: wait for locks up to 5 seconds
//
// The same database also stores sync cursors, so a replica backed by SQLite
// remembers what each peer has seen across restarts.
package sqlite
