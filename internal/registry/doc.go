// Package registry tracks which identity owns which live connection.
//
// The registry is the only state shared between sessions. Identities are
// spread over a fixed set of shards, each guarded by its own lock, so
// traffic for different identities rarely contends and never waits on
// another identity's network I/O: locks are held only while the map is
// read or changed, and every write to a peer happens after the lock is
// released through the connection's non-blocking Send.
//
// Invariants:
//   - at most one connection is registered per identity; registering a
//     second one evicts (closes) the first.
//   - a connection whose Send fails is removed and closed the first time
//     the failure is observed (send-or-evict).
//   - Release only removes an entry that still points at the caller's
//     connection, so a session that lost its slot to a newer login cannot
//     remove its successor.
package registry
