package store

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const sealedFormatVersion = 1

// ErrWrongPassphrase is returned when a sealed file cannot be opened.
var ErrWrongPassphrase = errors.New("wrong passphrase or corrupted file")

// sealed is the on-disk form of every encrypted client file.
type sealed struct {
	V      int    `json:"v"`
	Salt   []byte `json:"salt"`
	N      int    `json:"scrypt_N"`
	R      int    `json:"scrypt_r"`
	P      int    `json:"scrypt_p"`
	Cipher []byte `json:"cipher"`
}

// encrypt derives a fresh key from passphrase and a random salt, then seals raw.
func encrypt(passphrase string, raw []byte, N, r, p int) ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	key, err := scrypt.Key([]byte(passphrase), salt, N, r, p, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	// The key is unique per salt, so a fixed nonce is never reused under one key.
	nonce := make([]byte, chacha20poly1305.NonceSize)
	return json.Marshal(sealed{
		V:      sealedFormatVersion,
		Salt:   salt,
		N:      N,
		R:      r,
		P:      p,
		Cipher: aead.Seal(nil, nonce, raw, salt),
	})
}

func decrypt(passphrase string, b []byte) ([]byte, error) {
	var s sealed
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decode sealed file: %w", err)
	}
	if s.V > sealedFormatVersion {
		return nil, fmt.Errorf("unsupported sealed file version %d", s.V)
	}
	key, err := scrypt.Key([]byte(passphrase), s.Salt, s.N, s.R, s.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, make([]byte, chacha20poly1305.NonceSize), s.Cipher, s.Salt)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return pt, nil
}

// scryptParams are the cost parameters for newly sealed files. Tests lower them.
var scryptParams = [3]int{1 << 15, 8, 1}

func scryptParamsDefault() (N, r, p int) { return scryptParams[0], scryptParams[1], scryptParams[2] }
