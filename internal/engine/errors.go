package engine

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/cryptoken/pkg/types"
)

// Request validation errors.
var (
	ErrInvalidAmount    = errors.New("amount must be greater than zero")
	ErrMissingSecret    = errors.New("private key not specified")
	ErrInvalidPublicKey = errors.New("invalid public key")
	ErrNotRegistered    = errors.New("wallet not registered")
)

// Authentication errors.
var (
	ErrInvalidSecret = errors.New("private key does not match wallet")
	ErrHasher        = errors.New("secret hasher failure")
)

// Accounting errors.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnbalanced        = errors.New("inputs do not equal payment plus change")
	ErrAmountOverflow    = errors.New("amount overflow")
	ErrNoInputs          = errors.New("no spendable outputs")
	ErrTooManyInputs     = errors.New("too many inputs")
)

// Other engine errors.
var (
	ErrInvalidConfig     = errors.New("invalid engine config")
	ErrAlreadyRegistered = errors.New("wallet already registered")
)

// LegError reports a two-leg operation that failed after its first leg
// committed. Committed stays on the ledger. When compensation ran,
// Compensation holds the id of the reversing transfer, or CompensationErr
// why it could not be committed.
type LegError struct {
	Operation       string
	Committed       types.Hash
	Compensation    types.Hash
	CompensationErr error
	Err             error
}

func (e *LegError) Error() string {
	msg := fmt.Sprintf("%s: second leg failed after %s committed: %v", e.Operation, e.Committed, e.Err)
	switch {
	case !e.Compensation.IsZero():
		msg += fmt.Sprintf(" (compensated by %s)", e.Compensation)
	case e.CompensationErr != nil:
		msg += fmt.Sprintf(" (compensation failed: %v)", e.CompensationErr)
	}
	return msg
}

// Unwrap returns the second-leg cause.
func (e *LegError) Unwrap() error {
	return e.Err
}

// Compensated reports whether a compensating transfer committed.
func (e *LegError) Compensated() bool {
	return !e.Compensation.IsZero()
}
