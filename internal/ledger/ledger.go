// Package ledger defines the contract between the wallet engine and the
// output-based ledger service, with a JSON-RPC client and a single-process
// reference implementation.
package ledger

import (
	"context"
	"errors"

	"github.com/Klingon-tech/cryptoken/pkg/tx"
	"github.com/Klingon-tech/cryptoken/pkg/types"
)

// Ledger errors.
var (
	ErrNotFound       = errors.New("not found")
	ErrOutputSpent    = errors.New("output already spent")
	ErrRejected       = errors.New("transaction rejected")
	ErrAlreadyIssued  = errors.New("asset already issued")
	ErrInvalidRequest = errors.New("invalid ledger request")
	ErrAmountOverflow = errors.New("amount overflow")
)

// JSON-RPC error codes used on the ledger wire.
const (
	CodeInvalidParams = -32602
	CodeInternalError = -32603
	CodeNotFound      = -32000
	CodeOutputSpent   = -32010
	CodeRejected      = -32011
)

// JSON-RPC method names served by a ledger endpoint.
const (
	MethodQueryOutputs      = "ledger_queryOutputs"
	MethodGetTransaction    = "ledger_getTransaction"
	MethodCommitTransaction = "ledger_commitTransaction"
)

// Ledger is the append-only output ledger consumed by the engine.
type Ledger interface {
	// QueryOutputs lists outputs whose public keys include publicKey.
	// A nil spent returns every output; otherwise only those whose spent
	// status equals *spent.
	QueryOutputs(ctx context.Context, publicKey string, spent *bool) ([]OutputRef, error)

	// GetTransaction returns a committed transaction, or ErrNotFound.
	GetTransaction(ctx context.Context, id types.Hash) (*tx.Transaction, error)

	// CommitTransaction submits a signed transaction and returns once it is
	// committed or rejected.
	CommitTransaction(ctx context.Context, t *tx.Transaction) (*CommitResult, error)
}

// OutputRef identifies an output by transaction id and index.
type OutputRef = types.Outpoint

// CommitResult is returned for a committed transaction.
type CommitResult struct {
	ID        types.Hash   `json:"id"`
	Operation tx.Operation `json:"operation"`
	Asset     types.Asset  `json:"asset"`
}

// Bool returns a pointer to v, for the spent filter of QueryOutputs.
func Bool(v bool) *bool {
	return &v
}

// QueryOutputsParams are the parameters of ledger_queryOutputs.
type QueryOutputsParams struct {
	PublicKey string `json:"public_key"`
	Spent     *bool  `json:"spent,omitempty"`
}

// GetTransactionParams are the parameters of ledger_getTransaction.
type GetTransactionParams struct {
	ID types.Hash `json:"id"`
}

// CommitTransactionParams are the parameters of ledger_commitTransaction.
type CommitTransactionParams struct {
	Transaction *tx.Transaction `json:"transaction"`
}

// ErrorCode maps a ledger error to its JSON-RPC error code.
func ErrorCode(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrOutputSpent):
		return CodeOutputSpent
	case errors.Is(err, ErrRejected):
		return CodeRejected
	case errors.Is(err, ErrInvalidRequest):
		return CodeInvalidParams
	default:
		return CodeInternalError
	}
}

// errorForCode is the inverse of ErrorCode. Unknown codes map to nil.
func errorForCode(code int) error {
	switch code {
	case CodeNotFound:
		return ErrNotFound
	case CodeOutputSpent:
		return ErrOutputSpent
	case CodeRejected:
		return ErrRejected
	case CodeInvalidParams:
		return ErrInvalidRequest
	default:
		return nil
	}
}
