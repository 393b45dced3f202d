// Package transport implements the connection handles the relay registers:
// a WebSocket handle (gorilla/websocket) speaking JSON and a TCP handle
// speaking a newline-delimited text protocol.
//
// Every handle owns a bounded outbound queue drained by a single writer
// goroutine. Send only enqueues, so a stalled peer can never block the
// caller; a full queue is reported as domain.ErrSlowConsumer and the caller
// decides whether to evict. Close asks the writer to flush what is already
// queued and then shuts the socket, which in turn unblocks any pending
// Receive.
package transport
