package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"cipherelay/internal/domain"
)

const identityFile = "identity.json.enc"

// IdentityFileStore persists the local X25519 key pair, sealed with a passphrase.
type IdentityFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewIdentityFileStore returns an IdentityFileStore rooted at dir.
func NewIdentityFileStore(dir string) *IdentityFileStore {
	return &IdentityFileStore{dir: dir}
}

// SaveIdentity seals keys and replaces any identity already on disk.
func (s *IdentityFileStore) SaveIdentity(passphrase string, keys domain.IdentityKeys) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	N, r, p := scryptParamsDefault()
	ct, err := encrypt(passphrase, raw, N, r, p)
	if err != nil {
		return err
	}
	return writeFile(filepath.Join(s.dir, identityFile), ct, 0o600)
}

// LoadIdentity reads and opens the sealed key pair.
func (s *IdentityFileStore) LoadIdentity(passphrase string) (domain.IdentityKeys, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(filepath.Join(s.dir, identityFile))
	if err != nil {
		return domain.IdentityKeys{}, err
	}
	pt, err := decrypt(passphrase, b)
	if err != nil {
		return domain.IdentityKeys{}, err
	}
	var keys domain.IdentityKeys
	if err := json.Unmarshal(pt, &keys); err != nil {
		return domain.IdentityKeys{}, err
	}
	return keys, nil
}

var _ domain.IdentityStore = (*IdentityFileStore)(nil)
