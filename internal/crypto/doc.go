// Package crypto holds the client-side primitives used by Cipherelay.
//
// Contents
//
//   - X25519 key generation and Diffie-Hellman (GenerateX25519, DH)
//   - Sealed payloads addressed to a peer's public key (Seal, Open)
//   - Short public-key fingerprints for display (Fingerprint)
//   - Best-effort memory wiping for secrets (Wipe)
//
// The relay never calls into this package: payloads are opaque to it.
package crypto
