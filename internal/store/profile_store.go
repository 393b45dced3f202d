package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"cipherelay/internal/domain"
)

const profilesFile = "profiles.json.enc"

// ProfileFileStore keeps one sealed file of per-relay account profiles.
// Profiles carry bearer tokens, so the whole map is encrypted under the
// identity passphrase.
type ProfileFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewProfileFileStore returns a ProfileFileStore rooted at dir.
func NewProfileFileStore(dir string) *ProfileFileStore {
	return &ProfileFileStore{dir: dir}
}

// SaveAccountProfile stores or replaces the profile for its (server, username) pair.
func (s *ProfileFileStore) SaveAccountProfile(passphrase string, profile domain.AccountProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profiles, err := s.load(passphrase)
	if err != nil {
		return err
	}
	profiles[profileKey(profile.ServerURL, profile.Username)] = profile

	raw, err := json.Marshal(profiles)
	if err != nil {
		return err
	}
	N, r, p := scryptParamsDefault()
	ct, err := encrypt(passphrase, raw, N, r, p)
	if err != nil {
		return err
	}
	return writeFile(filepath.Join(s.dir, profilesFile), ct, 0o600)
}

// LoadAccountProfile returns the profile for (serverURL, username), if saved.
func (s *ProfileFileStore) LoadAccountProfile(
	passphrase string,
	serverURL string,
	username domain.Identity,
) (domain.AccountProfile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profiles, err := s.load(passphrase)
	if err != nil {
		return domain.AccountProfile{}, false, err
	}
	profile, ok := profiles[profileKey(serverURL, username)]
	return profile, ok, nil
}

func (s *ProfileFileStore) load(passphrase string) (map[string]domain.AccountProfile, error) {
	profiles := make(map[string]domain.AccountProfile)
	b, err := readFile(filepath.Join(s.dir, profilesFile))
	if err != nil || b == nil {
		return profiles, err
	}
	pt, err := decrypt(passphrase, b)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(pt, &profiles); err != nil {
		return nil, fmt.Errorf("decode profiles: %w", err)
	}
	return profiles, nil
}

func profileKey(serverURL string, username domain.Identity) string {
	return fmt.Sprintf("%s|%s", serverURL, username)
}

var _ domain.ProfileStore = (*ProfileFileStore)(nil)
