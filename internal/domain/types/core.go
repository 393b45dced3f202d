package types

import (
	"fmt"
	"strings"
)

// Identity is the authenticated principal a connection acts as after the
// handshake. It is the account username and is never mutated once issued.
type Identity string

// String returns the string form of the identity.
func (id Identity) String() string { return string(id) }

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }

// AuthMode selects how a connection proves its identity during the handshake.
type AuthMode string

const (
	// AuthModeLogin checks credentials against an existing account.
	AuthModeLogin AuthMode = "login"
	// AuthModeSignup provisions a new account from the credentials.
	AuthModeSignup AuthMode = "signup"
	// AuthModeToken authenticates with a previously issued bearer token.
	AuthModeToken AuthMode = "token"
)

// String returns the string form of the mode.
func (m AuthMode) String() string { return string(m) }

// ParseAuthMode maps a client-supplied selector onto an AuthMode.
// Selectors are case-insensitive; only login and signup may be chosen
// interactively.
func ParseAuthMode(s string) (AuthMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "login":
		return AuthModeLogin, nil
	case "signup":
		return AuthModeSignup, nil
	default:
		return "", fmt.Errorf("unknown auth mode %q", s)
	}
}

// Credentials is the identity name and secret submitted during an
// interactive handshake.
type Credentials struct {
	Username string
	Password string
}
