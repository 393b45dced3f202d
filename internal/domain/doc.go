// Package domain defines core data models and interfaces shared across the app.
// It contains plain types (wire/state) and contracts (interfaces) only.
//
// The relay core revolves around three values: an Identity (the principal a
// connection acts as), a Conn (the live handle to that principal's peer) and
// an Envelope (what the server writes to a Conn). Everything else here is
// either a collaborator contract (CredentialGate, TokenVerifier, stores) or
// client-side state (IdentityKeys, AccountProfile).
package domain
