// Package httpsync carries the sync protocol over HTTP.
//
// Server exposes any reconcile.Peer (normally a replica.Replica) as a small
// JSON API; Client is a reconcile.Peer that talks to such a server. A sync
// round run through a Client behaves exactly like one between two
// in-process peers:
//
//	GET  /v1/streams                              {"streams":[...]}
//	GET  /v1/counts?stream=S                      {"counts":{device:n}}
//	GET  /v1/events?stream=S&device=D&skip=N      {"events":[...]}
//	POST /v1/events?stream=S&device=D             {"events":[...]} -> {"accepted":n}
//
// A pushed batch that fails index validation is not an HTTP error: the
// server answers 200 with {"accepted":0}. A payload that does not decode is
// answered with 422 and the Client turns it back into *eventlog.DecodeError.
package httpsync
