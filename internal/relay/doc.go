// Package relay is the client side of a Cipherelay server.
//
// HTTP wraps the JSON API (register, login, directory, key lookup, online
// list). Stream is one live relay session over WebSocket (JSON frames) or
// raw TCP (line frames); it performs the handshake and then sends frames
// and yields delivered envelopes.
//
// API errors are returned as *APIError carrying the status code and the
// server's detail message.
package relay
