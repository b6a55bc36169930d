// Package secret hashes and verifies wallet private keys so the wallet
// store never holds them in the clear.
package secret

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrMismatch is returned by Compare when the secret does not match.
var ErrMismatch = errors.New("secret does not match hash")

// Hasher hashes secrets and compares them against stored hashes.
type Hasher interface {
	Hash(secret string) (string, error)
	// Compare returns nil on match, ErrMismatch on mismatch, and any other
	// error when the hash cannot be evaluated.
	Compare(secret, hash string) error
}

// DefaultCost is the bcrypt work factor used by NewBcrypt.
const DefaultCost = bcrypt.DefaultCost

// Bcrypt implements Hasher with bcrypt.
type Bcrypt struct {
	cost int
}

// NewBcrypt returns a bcrypt hasher. A cost outside bcrypt's range falls
// back to DefaultCost.
func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &Bcrypt{cost: cost}
}

// Hash returns the bcrypt hash of secret.
func (b *Bcrypt) Hash(secret string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(secret), b.cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash: %w", err)
	}
	return string(h), nil
}

// Compare checks secret against a bcrypt hash.
func (b *Bcrypt) Compare(secret, hash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrMismatch
	default:
		return fmt.Errorf("bcrypt compare: %w", err)
	}
}
