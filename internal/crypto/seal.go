package crypto

import (
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"cipherelay/internal/domain"
)

const sealInfo = "cipherelay sealed payload v1"

// ErrOpen is returned when a sealed payload cannot be opened with the given key.
var ErrOpen = errors.New("cannot open sealed payload")

// Seal encrypts plaintext so only the holder of to's private key can read it.
//
// Layout: ephemeral public key (32) || ciphertext. The key is
// HKDF-SHA256(DH(eph, to), salt = eph_pub || to). Each payload uses a fresh
// ephemeral key, so a zero nonce is never reused under one key.
func Seal(to domain.X25519Public, plaintext []byte) ([]byte, error) {
	ephPriv, ephPub, err := GenerateX25519()
	if err != nil {
		return nil, err
	}
	defer Wipe(ephPriv[:])

	key, err := sealKey(ephPriv, to, ephPub, to)
	if err != nil {
		return nil, err
	}
	defer Wipe(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(ephPub)+len(plaintext)+aead.Overhead())
	out = append(out, ephPub[:]...)
	return aead.Seal(out, make([]byte, aead.NonceSize()), plaintext, ephPub[:]), nil
}

// Open decrypts a payload produced by Seal for keys.
func Open(keys domain.IdentityKeys, sealed []byte) ([]byte, error) {
	var ephPub domain.X25519Public
	if len(sealed) < len(ephPub)+chacha20poly1305.Overhead {
		return nil, ErrOpen
	}
	copy(ephPub[:], sealed)

	key, err := sealKey(keys.XPriv, ephPub, ephPub, keys.XPub)
	if err != nil {
		return nil, ErrOpen
	}
	defer Wipe(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, make([]byte, aead.NonceSize()), sealed[len(ephPub):], ephPub[:])
	if err != nil {
		return nil, ErrOpen
	}
	return pt, nil
}

func sealKey(priv domain.X25519Private, peer, ephPub, recipient domain.X25519Public) ([]byte, error) {
	shared, err := DH(priv, peer)
	if err != nil {
		return nil, err
	}
	defer Wipe(shared[:])

	salt := make([]byte, 0, 64)
	salt = append(salt, ephPub[:]...)
	salt = append(salt, recipient[:]...)

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared[:], salt, []byte(sealInfo)), key); err != nil {
		return nil, err
	}
	return key, nil
}
