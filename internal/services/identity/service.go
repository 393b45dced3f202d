package identity

import (
	"fmt"
	"unicode"

	"cipherelay/internal/crypto"
	"cipherelay/internal/domain"
)

const (
	// minPassphraseLength defines the minimum number of characters required for a passphrase.
	minPassphraseLength = 12
)

var (
	// ErrWeakPassphrase is returned when the passphrase fails the strength policy.
	ErrWeakPassphrase = fmt.Errorf(
		"passphrase is too weak (must be at least %d characters and include upper, lower, "+
			"number, and symbol)",
		minPassphraseLength,
	)
)

// Service manages the client's long-term X25519 key pair using a backing store.
//
// The public half is published as the account public key at registration,
// so peers can seal payloads to it.
type Service struct {
	store domain.IdentityStore
}

// New returns an identity service backed by the given store.
func New(s domain.IdentityStore) *Service { return &Service{store: s} }

// GenerateIdentity creates a new key pair, saves it encrypted with the
// passphrase, and returns it with a short fingerprint of the public key.
func (s *Service) GenerateIdentity(
	passphrase string,
) (domain.IdentityKeys, domain.Fingerprint, error) {
	if !isSecurePassphrase(passphrase) {
		return domain.IdentityKeys{}, "", ErrWeakPassphrase
	}

	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.IdentityKeys{}, "", err
	}
	keys := domain.IdentityKeys{XPub: pub, XPriv: priv}
	if err := s.store.SaveIdentity(passphrase, keys); err != nil {
		return domain.IdentityKeys{}, "", err
	}
	return keys, fingerprint(keys), nil
}

// LoadIdentity decrypts and returns the local key pair.
func (s *Service) LoadIdentity(passphrase string) (domain.IdentityKeys, error) {
	return s.store.LoadIdentity(passphrase)
}

// FingerprintIdentity returns a short fingerprint of the local public key.
func (s *Service) FingerprintIdentity(passphrase string) (domain.Fingerprint, error) {
	keys, err := s.store.LoadIdentity(passphrase)
	if err != nil {
		return "", err
	}
	return fingerprint(keys), nil
}

// PublicKey returns the base64 public key as published in the directory.
func PublicKey(keys domain.IdentityKeys) string { return crypto.B64(keys.XPub.Slice()) }

func fingerprint(keys domain.IdentityKeys) domain.Fingerprint {
	return domain.Fingerprint(crypto.Fingerprint(keys.XPub.Slice()))
}

// isSecurePassphrase enforces a basic strength policy.
func isSecurePassphrase(passphrase string) bool {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	if len(passphrase) < minPassphraseLength {
		return false
	}
	for _, r := range passphrase {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasSymbol
}

var _ domain.IdentityService = (*Service)(nil)
