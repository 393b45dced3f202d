// Package store provides persistence for Cipherelay.
//
// Server side, it implements the user directory (domain.AccountStore) and
// the append-only message history (domain.MessageStore) twice: SQLiteStore
// backed by github.com/mattn/go-sqlite3, and MemoryStore for tests and for
// running without a database file.
//
// Client side, it keeps the local identity key pair (IdentityFileStore) and
// per-relay account profiles with their access tokens (ProfileFileStore) on
// disk. Both are JSON sealed with a passphrase-derived key (scrypt +
// ChaCha20-Poly1305) and written atomically via temp file and rename.
package store
