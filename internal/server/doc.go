// Package server owns the control socket.
//
// Ownership boundary:
// - address resolution and listening
//
// - the connection registry
//
// - per-connection framing and dispatch
//
// Lifecycle order:
// - listen -> serve -> shutdown
//
// - one goroutine per connection; a connection reads its next request only
// after the previous reply was fully written.
//
// - the registry is mutated only by the Serve loop.
//
// Cancelling the Serve context closes the listener and every connection
// without flushing in-flight replies.
package server
