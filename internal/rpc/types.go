package rpc

import (
	"time"

	"github.com/Klingon-tech/cryptoken/internal/ledger"
	"github.com/Klingon-tech/cryptoken/pkg/tx"
	"github.com/Klingon-tech/cryptoken/pkg/types"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = ledger.CodeInvalidParams
	CodeInternalError  = ledger.CodeInternalError
	CodeNotFound       = ledger.CodeNotFound
)

// Application error codes.
const (
	CodeUnauthorized      = -32001
	CodeInsufficientFunds = -32002
	CodeConflict          = -32003
	CodeLegFailed         = -32004
	CodeOutputSpent       = ledger.CodeOutputSpent
	CodeRejected          = ledger.CodeRejected
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      interface{} `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ── Param types ─────────────────────────────────────────────────────────

// UserParam is used by wallet_register and wallet_fetch.
type UserParam struct {
	UserID string `json:"user_id"`
}

// WalletAmountParam is used by wallet_deposit, wallet_withdraw and
// wallet_sellToken. MYR, when set on wallet_sellToken, is the fiat the
// wallet receives for its tokens.
type WalletAmountParam struct {
	UserID     string  `json:"user_id"`
	PrivateKey string  `json:"private_key"`
	Amount     uint64  `json:"amount"`
	MYR        *uint64 `json:"myr,omitempty"`
}

// TransferTokenParam is used by wallet_transferToken.
type TransferTokenParam struct {
	UserID     string `json:"user_id"`
	PrivateKey string `json:"private_key"`
	ToKey      string `json:"to_key"`
	Amount     uint64 `json:"amount"`
}

// BuyTokenParam is used by wallet_buyToken.
type BuyTokenParam struct {
	UserID     string `json:"user_id"`
	PrivateKey string `json:"private_key"`
	Amount     uint64 `json:"amount"`
	MYR        uint64 `json:"myr"`
}

// ValidateKeyParam is used by wallet_validatePrivateKey.
type ValidateKeyParam struct {
	UserID     string `json:"user_id"`
	PrivateKey string `json:"private_key"`
}

// OwnerParam is used by the balance and output queries. Either field
// identifies the owner; PublicKey wins when both are set.
type OwnerParam struct {
	PublicKey string `json:"public_key,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

// ── Result types ────────────────────────────────────────────────────────

// WalletResult is returned by wallet_fetch. The private key hash is never
// exposed.
type WalletResult struct {
	UserID     string    `json:"user_id"`
	PublicKey  string    `json:"public_key,omitempty"`
	Registered bool      `json:"registered"`
	CreatedAt  time.Time `json:"created_at"`
}

// ValidateKeyResult is returned by wallet_validatePrivateKey.
type ValidateKeyResult struct {
	Valid bool `json:"valid"`
}

// LaunchResult is returned by token_launch and myr_launch. ID is empty
// when the issuer already held the asset.
type LaunchResult struct {
	Asset  types.Asset `json:"asset"`
	Issuer string      `json:"issuer"`
	Issued bool        `json:"issued"`
	ID     string      `json:"id,omitempty"`
}

// BalanceResult is returned by balance_token and balance_myr.
type BalanceResult struct {
	PublicKey string      `json:"public_key"`
	Asset     types.Asset `json:"asset"`
	Balance   uint64      `json:"balance"`
}

// OutputResult describes one ledger output.
type OutputResult struct {
	TxID      types.Hash   `json:"transaction_id"`
	Index     uint32       `json:"output_index"`
	Operation tx.Operation `json:"operation"`
	Asset     types.Asset  `json:"asset"`
	Amount    uint64       `json:"amount"`
	Spent     bool         `json:"spent"`
}

// LegErrorData is attached to CodeLegFailed errors.
type LegErrorData struct {
	Operation         string `json:"operation"`
	Committed         string `json:"committed"`
	Compensation      string `json:"compensation,omitempty"`
	CompensationError string `json:"compensation_error,omitempty"`
}
