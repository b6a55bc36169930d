package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	klog "github.com/Klingon-tech/cryptoken/internal/log"
	"github.com/Klingon-tech/cryptoken/internal/walletstore"
)

// Store implements walletstore.Store using PostgreSQL.
type Store struct {
	pool *Pool
}

// NewStore creates a wallet store on pool. Call Migrate first.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

// Compile-time interface check.
var _ walletstore.Store = (*Store)(nil)

// FetchByUserID implements walletstore.Store.
func (s *Store) FetchByUserID(ctx context.Context, userID string) (*walletstore.Wallet, error) {
	query := `
		SELECT user_id, public_key, private_key_hash, created_at, updated_at
		FROM wallets
		WHERE user_id = $1
	`

	w, err := scanWallet(s.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("user %s: %w", userID, walletstore.ErrNotFound)
		}
		return nil, fmt.Errorf("fetch wallet: %w", err)
	}
	return w, nil
}

// Save implements walletstore.Store. The update only applies while the
// stored wallet has no key or the same key.
func (s *Store) Save(ctx context.Context, w *walletstore.Wallet) error {
	if w == nil || w.UserID == "" {
		return walletstore.ErrInvalidWallet
	}

	query := `
		INSERT INTO wallets (user_id, public_key, private_key_hash)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET public_key = EXCLUDED.public_key,
		    private_key_hash = EXCLUDED.private_key_hash,
		    updated_at = now()
		WHERE wallets.public_key = '' OR wallets.public_key = EXCLUDED.public_key
		RETURNING created_at, updated_at
	`

	err := s.pool.QueryRow(ctx, query, w.UserID, w.PublicKey, w.PrivateKeyHash).
		Scan(&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		switch {
		case isNotFoundError(err):
			return fmt.Errorf("user %s: %w", w.UserID, walletstore.ErrConflict)
		case isDuplicateKeyError(err):
			return fmt.Errorf("public key in use by another user: %w", walletstore.ErrConflict)
		default:
			return fmt.Errorf("save wallet: %w", err)
		}
	}

	klog.Store.Debug().Str("user_id", w.UserID).Bool("registered", w.Registered()).Msg("Wallet saved")
	return nil
}

func scanWallet(row pgx.Row) (*walletstore.Wallet, error) {
	var w walletstore.Wallet
	err := row.Scan(&w.UserID, &w.PublicKey, &w.PrivateKeyHash, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}
