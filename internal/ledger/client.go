package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Klingon-tech/cryptoken/internal/rpcclient"
	"github.com/Klingon-tech/cryptoken/pkg/tx"
	"github.com/Klingon-tech/cryptoken/pkg/types"
)

// RPCError is a JSON-RPC error returned by a remote ledger. It unwraps to
// the matching sentinel (ErrNotFound, ErrOutputSpent, ErrRejected) when the
// code is known.
type RPCError struct {
	Method  string
	Code    int
	Message string
	kind    error
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("ledger %s: rpc error %d: %s", e.Method, e.Code, e.Message)
}

// Unwrap returns the sentinel for the error code, if any.
func (e *RPCError) Unwrap() error {
	return e.kind
}

// Client talks to a remote ledger over JSON-RPC.
type Client struct {
	rpc *rpcclient.Client
}

// NewClient creates a ledger client for the given endpoint URL.
func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{rpc: rpcclient.NewWithTimeout(endpoint, timeout)}
}

// Endpoint returns the ledger URL.
func (c *Client) Endpoint() string {
	return c.rpc.Endpoint()
}

// QueryOutputs implements Ledger.
func (c *Client) QueryOutputs(ctx context.Context, publicKey string, spent *bool) ([]OutputRef, error) {
	var refs []OutputRef
	err := c.call(ctx, MethodQueryOutputs, QueryOutputsParams{PublicKey: publicKey, Spent: spent}, &refs)
	if err != nil {
		return nil, err
	}
	return refs, nil
}

// GetTransaction implements Ledger.
func (c *Client) GetTransaction(ctx context.Context, id types.Hash) (*tx.Transaction, error) {
	var t tx.Transaction
	if err := c.call(ctx, MethodGetTransaction, GetTransactionParams{ID: id}, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// CommitTransaction implements Ledger.
func (c *Client) CommitTransaction(ctx context.Context, t *tx.Transaction) (*CommitResult, error) {
	var res CommitResult
	if err := c.call(ctx, MethodCommitTransaction, CommitTransactionParams{Transaction: t}, &res); err != nil {
		return nil, err
	}
	if res.ID != t.ID {
		return nil, fmt.Errorf("ledger %s: committed id %s does not match %s", MethodCommitTransaction, res.ID, t.ID)
	}
	return &res, nil
}

func (c *Client) call(ctx context.Context, method string, params, result interface{}) error {
	err := c.rpc.Call(ctx, method, params, result)
	if err == nil {
		return nil
	}
	var rpcErr *rpcclient.RPCError
	if errors.As(err, &rpcErr) {
		return &RPCError{
			Method:  method,
			Code:    rpcErr.Code,
			Message: rpcErr.Message,
			kind:    errorForCode(rpcErr.Code),
		}
	}
	return fmt.Errorf("ledger %s: %w", method, err)
}
