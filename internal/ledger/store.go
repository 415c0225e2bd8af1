package ledger

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"
)

// AccountStore persists committed account state. Commit must apply every
// account of a transaction or none of them.
type AccountStore interface {
	Load(ctx context.Context, keys []solana.PublicKey) (map[solana.PublicKey]*Account, error)
	Commit(ctx context.Context, slot uint64, accounts map[solana.PublicKey]*Account) error
	LatestSlot(ctx context.Context) (uint64, error)
	Close() error
}

type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[solana.PublicKey]*Account
	slot     uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[solana.PublicKey]*Account)}
}

func (s *MemoryStore) Load(_ context.Context, keys []solana.PublicKey) (map[solana.PublicKey]*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[solana.PublicKey]*Account, len(keys))
	for _, key := range keys {
		if account, ok := s.accounts[key]; ok {
			out[key] = account.Clone()
		}
	}
	return out, nil
}

func (s *MemoryStore) Commit(_ context.Context, slot uint64, accounts map[solana.PublicKey]*Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, account := range accounts {
		s.accounts[key] = account.Clone()
	}
	if slot > s.slot {
		s.slot = slot
	}
	return nil
}

func (s *MemoryStore) LatestSlot(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slot, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
