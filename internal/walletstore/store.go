// Package walletstore persists the user-to-wallet mapping: a user's public
// key and the bcrypt hash of their private key.
package walletstore

import (
	"context"
	"errors"
	"time"
)

// Store errors.
var (
	ErrNotFound      = errors.New("wallet not found")
	ErrConflict      = errors.New("wallet already registered with different keys")
	ErrInvalidWallet = errors.New("invalid wallet")
)

// Wallet is a user's wallet record. A wallet without keys exists but is not
// yet registered.
type Wallet struct {
	UserID         string    `json:"user_id"`
	PublicKey      string    `json:"public_key"`
	PrivateKeyHash string    `json:"private_key_hash"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Registered reports whether the wallet has a keypair.
func (w *Wallet) Registered() bool {
	return w != nil && w.PublicKey != "" && w.PrivateKeyHash != ""
}

// Store is the wallet persistence contract.
type Store interface {
	// FetchByUserID returns the wallet of userID, or ErrNotFound.
	FetchByUserID(ctx context.Context, userID string) (*Wallet, error)

	// Save inserts or updates a wallet. Replacing the public key of a
	// registered wallet fails with ErrConflict.
	Save(ctx context.Context, w *Wallet) error
}

func validate(w *Wallet) error {
	if w == nil || w.UserID == "" {
		return ErrInvalidWallet
	}
	return nil
}
