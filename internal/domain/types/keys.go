package types

// X25519Public is a Curve25519 public key.
type X25519Public [32]byte

// Slice returns the key as a []byte.
func (p X25519Public) Slice() []byte { return p[:] }

// X25519Private is a Curve25519 private key.
type X25519Private [32]byte

// Slice returns the key as a []byte.
func (k X25519Private) Slice() []byte { return k[:] }

// IdentityKeys holds a client's long-term X25519 key pair. The public half is
// published as the account public key so peers can encrypt to it.
type IdentityKeys struct {
	XPub  X25519Public  `json:"xpub"`
	XPriv X25519Private `json:"xpriv"`
}
