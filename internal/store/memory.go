package store

import (
	"context"
	"sort"
	"sync"

	"cipherelay/internal/domain"
)

// MemoryStore keeps accounts and message history in process memory. All
// state is lost on exit.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[domain.Identity]domain.Account
	messages []domain.Message
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[domain.Identity]domain.Account)}
}

func (s *MemoryStore) CreateAccount(_ context.Context, acct domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[acct.Username]; ok {
		return ErrAccountExists
	}
	s.accounts[acct.Username] = acct
	return nil
}

func (s *MemoryStore) AccountByUsername(_ context.Context, username domain.Identity) (domain.Account, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[username]
	return acct, ok, nil
}

func (s *MemoryStore) ListAccounts(_ context.Context) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

// RecentMessages returns up to limit messages id sent, received or saw
// broadcast, newest first.
func (s *MemoryStore) RecentMessages(_ context.Context, id domain.Identity, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Message
	for i := len(s.messages) - 1; i >= 0; i-- {
		m := s.messages[i]
		if m.From == id || m.To == id || m.To == "" {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Messages returns a copy of the recorded history in append order.
func (s *MemoryStore) Messages() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Message(nil), s.messages...)
}

var (
	_ domain.AccountStore   = (*MemoryStore)(nil)
	_ domain.MessageStore   = (*MemoryStore)(nil)
	_ domain.MessageHistory = (*MemoryStore)(nil)
)
