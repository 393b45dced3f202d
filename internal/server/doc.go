// Package server is the relay's network edge.
//
// It accepts raw TCP connections (line protocol) and serves the HTTP API,
// including the WebSocket upgrade endpoints, then hands every accepted
// connection to its own session goroutine. Both listeners run under one
// errgroup and stop together when the parent context ends.
package server
