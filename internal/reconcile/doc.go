// Package reconcile brings two replicas' streams to the same event set.
//
// A round for one stream is a count exchange followed by a skip-based
// diff: for every device where one side holds more events than the other,
// the side that is ahead sends the events after the other side's count,
// and the receiver validates them against its own log length before
// accepting. Nothing is sent that the receiver already has, and a stale
// or replayed batch is dropped by the receiver's contiguity check.
//
// Transport calls are made through Peer, so the same code syncs two
// in-process replicas in tests and a device with a server over HTTP.
// No retries happen here; a failed round is simply run again later.
package reconcile
