package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/Klingon-tech/cryptoken/internal/keys"
	"github.com/Klingon-tech/cryptoken/internal/walletstore"
)

// Registration is returned once, at registration. The private key is not
// stored; only its hash is.
type Registration struct {
	UserID         string `json:"user_id"`
	PublicKey      string `json:"public_key"`
	PrivateKey     string `json:"private_key"`
	PrivateKeyHash string `json:"private_key_hash"`
}

// FetchWallet returns the wallet of userID.
func (e *Engine) FetchWallet(ctx context.Context, userID string) (*walletstore.Wallet, error) {
	if e.store == nil {
		return nil, fmt.Errorf("%w: no wallet store", ErrInvalidConfig)
	}
	return e.store.FetchByUserID(ctx, userID)
}

// Register generates a keypair for userID and stores its public key and
// private key hash. A missing wallet record is created.
func (e *Engine) Register(ctx context.Context, userID string) (*Registration, error) {
	if e.store == nil {
		return nil, fmt.Errorf("%w: no wallet store", ErrInvalidConfig)
	}
	if userID == "" {
		return nil, walletstore.ErrInvalidWallet
	}

	w, err := e.store.FetchByUserID(ctx, userID)
	switch {
	case errors.Is(err, walletstore.ErrNotFound):
		w = &walletstore.Wallet{UserID: userID}
	case err != nil:
		return nil, err
	case w.Registered():
		return nil, ErrAlreadyRegistered
	}

	kp, err := keys.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	hash, err := e.hasher.Hash(kp.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHasher, err)
	}

	w.PublicKey = kp.PublicKey
	w.PrivateKeyHash = hash
	if err := e.store.Save(ctx, w); err != nil {
		if errors.Is(err, walletstore.ErrConflict) {
			return nil, fmt.Errorf("%w: %w", ErrAlreadyRegistered, err)
		}
		return nil, fmt.Errorf("save wallet: %w", err)
	}

	e.logger.Info().Str("user_id", userID).Str("public_key", kp.PublicKey).Msg("Wallet registered")
	return &Registration{
		UserID:         userID,
		PublicKey:      kp.PublicKey,
		PrivateKey:     kp.PrivateKey,
		PrivateKeyHash: hash,
	}, nil
}
