// Package identity creates and unlocks the client's X25519 identity.
//
// It enforces the passphrase policy and persists the key pair sealed via
// domain.IdentityStore.
package identity
