// Package session drives one accepted connection from handshake to close.
//
// A Session moves through Accepted, Authenticating, Relaying and Closed.
// It authenticates the peer (bearer token or interactive credentials),
// registers the resulting identity, relays frames through the router until
// the connection ends, and always releases its registry entry and handle on
// the way out.
package session
