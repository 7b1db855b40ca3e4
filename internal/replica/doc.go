// Package replica is one device's view of every stream it holds.
//
// A Replica owns a registry of event kinds, a durable store.Backend and a
// bounded set of resident streams. Streams are loaded from the backend on
// first use by replaying stored records through the same validation path
// that sync uses, then kept in an LRU; an evicted stream is simply loaded
// again later.
//
// eventlog streams are not safe for concurrent use, so every access to a
// stream happens under that stream's mutex. Local recording and events
// pushed by a peer both serialize on it; different streams proceed in
// parallel.
//
// Replica implements reconcile.Local, so it can be either side of a sync.
package replica
