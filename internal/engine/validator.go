package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/Klingon-tech/cryptoken/internal/keys"
	"github.com/Klingon-tech/cryptoken/internal/secret"
	"github.com/Klingon-tech/cryptoken/internal/walletstore"
	"github.com/Klingon-tech/cryptoken/pkg/crypto"
)

// ValidatePrivateKey reports whether secretKey matches the stored hash. An
// empty secret is never valid. Hasher failures other than a mismatch are
// returned wrapping ErrHasher.
func (e *Engine) ValidatePrivateKey(ctx context.Context, secretKey, hash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if secretKey == "" {
		return false, nil
	}
	err := e.hasher.Compare(secretKey, hash)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, secret.ErrMismatch):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %w", ErrHasher, err)
	}
}

// authorize checks secretKey against the wallet and returns its signing key.
// The caller must Zero the key.
func (e *Engine) authorize(ctx context.Context, w *walletstore.Wallet, secretKey string) (*crypto.PrivateKey, error) {
	if !w.Registered() {
		return nil, ErrNotRegistered
	}
	if secretKey == "" {
		return nil, ErrMissingSecret
	}
	ok, err := e.ValidatePrivateKey(ctx, secretKey, w.PrivateKeyHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidSecret
	}
	key, err := keys.Keypair{PublicKey: w.PublicKey, PrivateKey: secretKey}.Signer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	return key, nil
}
