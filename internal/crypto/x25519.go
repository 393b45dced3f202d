package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/curve25519"

	"cipherelay/internal/domain"
)

// ErrBadPublicKey is returned for keys that are not 32 bytes of base64.
var ErrBadPublicKey = errors.New("public key must be 32 bytes, base64 encoded")

// GenerateX25519 returns a fresh Curve25519 key pair.
// The private key is clamped per RFC 7748.
func GenerateX25519() (priv domain.X25519Private, pub domain.X25519Public, err error) {
	if _, err = rand.Read(priv[:]); err != nil {
		return priv, pub, err
	}
	clamp(&priv)
	pb, err := curve25519.X25519(priv.Slice(), curve25519.Basepoint)
	if err != nil {
		return priv, pub, err
	}
	copy(pub[:], pb)
	return priv, pub, nil
}

// DH computes X25519 Diffie-Hellman.
func DH(priv domain.X25519Private, pub domain.X25519Public) (out [32]byte, err error) {
	secret, err := curve25519.X25519(priv.Slice(), pub.Slice())
	if err != nil {
		return out, err
	}
	copy(out[:], secret)
	Wipe(secret)
	return out, nil
}

// ParsePublicKey decodes the base64 form published in the user directory.
func ParsePublicKey(s string) (domain.X25519Public, error) {
	var pub domain.X25519Public
	b, err := UnB64(s)
	if err != nil {
		return pub, fmt.Errorf("%w: %v", ErrBadPublicKey, err)
	}
	if len(b) != len(pub) {
		return pub, ErrBadPublicKey
	}
	copy(pub[:], b)
	return pub, nil
}

func clamp(k *domain.X25519Private) {
	k[0] &= 248
	k[31] &= 127
	k[31] |= 64
}
