package db

import (
	"context"
	"sync"

	"github.com/yashasviy/bank-ledger-api/models"
)

// MemoryStore keeps accounts in a map. It is the default store and the one used in tests.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*models.Account
}

var _ AccountStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]*models.Account)}
}

// FindByLastName returns a copy of the stored account or ErrNotFound.
func (s *MemoryStore) FindByLastName(_ context.Context, lastName string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[lastName]
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

// Save stores a copy of account, replacing any account with the same last name.
func (s *MemoryStore) Save(_ context.Context, account *models.Account) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.LastName] = account.Clone()
	return account.Clone(), nil
}
