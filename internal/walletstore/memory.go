package walletstore

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Memory is an in-memory Store, safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	wallets map[string]Wallet
	now     func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		wallets: make(map[string]Wallet),
		now:     time.Now,
	}
}

// Compile-time interface check.
var _ Store = (*Memory)(nil)

// FetchByUserID implements Store.
func (m *Memory) FetchByUserID(ctx context.Context, userID string) (*Wallet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.wallets[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return &w, nil
}

// Save implements Store.
func (m *Memory) Save(ctx context.Context, w *Wallet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validate(w); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	stored, ok := m.wallets[w.UserID]
	if ok {
		if stored.PublicKey != "" && stored.PublicKey != w.PublicKey {
			return fmt.Errorf("user %s: %w", w.UserID, ErrConflict)
		}
	} else {
		stored.CreatedAt = now
	}
	for id, other := range m.wallets {
		if id != w.UserID && w.PublicKey != "" && other.PublicKey == w.PublicKey {
			return fmt.Errorf("public key in use by another user: %w", ErrConflict)
		}
	}

	stored.UserID = w.UserID
	stored.PublicKey = w.PublicKey
	stored.PrivateKeyHash = w.PrivateKeyHash
	stored.UpdatedAt = now
	m.wallets[w.UserID] = stored

	w.CreatedAt, w.UpdatedAt = stored.CreatedAt, stored.UpdatedAt
	return nil
}

// Len returns the number of stored wallets.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.wallets)
}
