// Package session implements the per-connection protocol state.
//
// A Session moves through idle, open, closing and closed. While open,
// every inbound request is dispatched on its own goroutine and its
// response is written to the session's outbound channel as soon as it is
// ready, so a slow request never blocks a fast one. Correlation is by
// JSON-RPC request id only.
//
// Transports own the wire: they feed frames to Deliver, drain Outbound,
// and call Abort when the connection drops.
package session
