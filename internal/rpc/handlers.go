package rpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/Klingon-tech/cryptoken/internal/engine"
	"github.com/Klingon-tech/cryptoken/internal/ledger"
	"github.com/Klingon-tech/cryptoken/internal/walletstore"
	"github.com/Klingon-tech/cryptoken/pkg/tx"
	"github.com/Klingon-tech/cryptoken/pkg/types"
)

// ── Ledger endpoints ────────────────────────────────────────────────────

func (s *Server) handleLedgerQueryOutputs(ctx context.Context, req *Request) (interface{}, *Error) {
	var params ledger.QueryOutputsParams
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.PublicKey == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "public_key is required"}
	}

	refs, err := s.ledger.QueryOutputs(ctx, params.PublicKey, params.Spent)
	if err != nil {
		return nil, ledgerError(err)
	}
	if refs == nil {
		refs = []ledger.OutputRef{}
	}
	return refs, nil
}

func (s *Server) handleLedgerGetTransaction(ctx context.Context, req *Request) (interface{}, *Error) {
	var params ledger.GetTransactionParams
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.ID.IsZero() {
		return nil, &Error{Code: CodeInvalidParams, Message: "id is required"}
	}

	t, err := s.ledger.GetTransaction(ctx, params.ID)
	if err != nil {
		return nil, ledgerError(err)
	}
	return t, nil
}

func (s *Server) handleLedgerCommitTransaction(ctx context.Context, req *Request) (interface{}, *Error) {
	var params ledger.CommitTransactionParams
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Transaction == nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "transaction is required"}
	}

	res, err := s.ledger.CommitTransaction(ctx, params.Transaction)
	if err != nil {
		return nil, ledgerError(err)
	}
	return res, nil
}

// ledgerError converts a ledger error to its wire form.
func ledgerError(err error) *Error {
	return &Error{Code: ledger.ErrorCode(err), Message: err.Error()}
}

// ── Output endpoints ────────────────────────────────────────────────────

func (s *Server) handleLedgerGetOutputs(ctx context.Context, req *Request) (interface{}, *Error) {
	var params OwnerParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	owner, rpcErr := s.resolveOwner(ctx, params)
	if rpcErr != nil {
		return nil, rpcErr
	}

	l := s.engine.Ledger()
	all, err := l.QueryOutputs(ctx, owner, nil)
	if err != nil {
		return nil, s.engineError("get outputs", err)
	}
	unspent, err := l.QueryOutputs(ctx, owner, ledger.Bool(false))
	if err != nil {
		return nil, s.engineError("get outputs", err)
	}
	live := make(map[types.Outpoint]bool, len(unspent))
	for _, ref := range unspent {
		live[ref] = true
	}

	fetched := make(map[types.Hash]*tx.Transaction)
	results := make([]OutputResult, 0, len(all))
	for _, ref := range all {
		t, ok := fetched[ref.TxID]
		if !ok {
			t, err = l.GetTransaction(ctx, ref.TxID)
			if err != nil {
				return nil, s.engineError("get outputs", err)
			}
			fetched[ref.TxID] = t
		}
		if int(ref.Index) >= len(t.Outputs) {
			return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("output %s out of range", ref)}
		}
		res := outputResult(t, ref.Index)
		res.Spent = !live[ref]
		results = append(results, res)
	}
	return results, nil
}

func (s *Server) handleIssuerMYROutputs(ctx context.Context, _ *Request) (interface{}, *Error) {
	issuer, err := s.engine.Issuer(types.AssetFiat)
	if err != nil {
		return nil, s.engineError("issuer outputs", err)
	}
	outs, err := s.engine.FindUnspent(ctx, issuer, types.AssetFiat)
	if err != nil {
		return nil, s.engineError("issuer outputs", err)
	}

	results := make([]OutputResult, len(outs))
	for i, u := range outs {
		results[i] = outputResult(u.Tx, u.Index)
	}
	return results, nil
}

func outputResult(t *tx.Transaction, index uint32) OutputResult {
	return OutputResult{
		TxID:      t.ID,
		Index:     index,
		Operation: t.Operation,
		Asset:     t.Metadata.Asset,
		Amount:    t.Outputs[index].Amount,
	}
}

// ── Balance endpoints ───────────────────────────────────────────────────

func (s *Server) handleBalanceToken(ctx context.Context, req *Request) (interface{}, *Error) {
	return s.balance(ctx, req, types.AssetToken)
}

func (s *Server) handleBalanceMYR(ctx context.Context, req *Request) (interface{}, *Error) {
	return s.balance(ctx, req, types.AssetFiat)
}

func (s *Server) balance(ctx context.Context, req *Request, asset types.Asset) (interface{}, *Error) {
	var params OwnerParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	owner, rpcErr := s.resolveOwner(ctx, params)
	if rpcErr != nil {
		return nil, rpcErr
	}

	bal, err := s.engine.BalanceOf(ctx, owner, asset)
	if err != nil {
		return nil, s.engineError("balance", err)
	}
	return &BalanceResult{PublicKey: owner, Asset: asset, Balance: bal}, nil
}

// resolveOwner returns the public key named by params, looking up the
// wallet when only a user id is given.
func (s *Server) resolveOwner(ctx context.Context, params OwnerParam) (string, *Error) {
	if params.PublicKey != "" {
		return params.PublicKey, nil
	}
	if params.UserID == "" {
		return "", &Error{Code: CodeInvalidParams, Message: "public_key or user_id is required"}
	}
	w, rpcErr := s.fetchRegistered(ctx, params.UserID)
	if rpcErr != nil {
		return "", rpcErr
	}
	return w.PublicKey, nil
}

// ── Launch endpoints ────────────────────────────────────────────────────

func (s *Server) handleTokenLaunch(ctx context.Context, _ *Request) (interface{}, *Error) {
	return s.launch(ctx, types.AssetToken)
}

func (s *Server) handleMYRLaunch(ctx context.Context, _ *Request) (interface{}, *Error) {
	return s.launch(ctx, types.AssetFiat)
}

func (s *Server) launch(ctx context.Context, asset types.Asset) (interface{}, *Error) {
	issuer, err := s.engine.Issuer(asset)
	if err != nil {
		return nil, s.engineError("launch", err)
	}
	id, err := s.engine.EnsureIssued(ctx, asset)
	if err != nil {
		return nil, s.engineError("launch", err)
	}

	res := &LaunchResult{Asset: asset, Issuer: issuer, Issued: !id.IsZero()}
	if res.Issued {
		res.ID = id.String()
	}
	return res, nil
}

// ── Error mapping ───────────────────────────────────────────────────────

// engineError maps an engine, wallet store or ledger error to a JSON-RPC
// error. Unclassified errors are logged and returned as internal errors.
func (s *Server) engineError(op string, err error) *Error {
	var legErr *engine.LegError
	if errors.As(err, &legErr) {
		data := LegErrorData{Operation: legErr.Operation, Committed: legErr.Committed.String()}
		if !legErr.Compensation.IsZero() {
			data.Compensation = legErr.Compensation.String()
		}
		if legErr.CompensationErr != nil {
			data.CompensationError = legErr.CompensationErr.Error()
		}
		s.logger.Warn().Err(err).Str("op", op).Msg("Trade left partially committed")
		return &Error{Code: CodeLegFailed, Message: err.Error(), Data: data}
	}

	switch {
	case errors.Is(err, engine.ErrInvalidSecret):
		return &Error{Code: CodeUnauthorized, Message: err.Error()}
	case errors.Is(err, engine.ErrInvalidAmount),
		errors.Is(err, engine.ErrMissingSecret),
		errors.Is(err, engine.ErrInvalidPublicKey),
		errors.Is(err, engine.ErrNotRegistered),
		errors.Is(err, walletstore.ErrInvalidWallet),
		errors.Is(err, ledger.ErrInvalidRequest):
		return &Error{Code: CodeInvalidParams, Message: err.Error()}
	case errors.Is(err, engine.ErrInsufficientFunds),
		errors.Is(err, engine.ErrUnbalanced),
		errors.Is(err, engine.ErrAmountOverflow),
		errors.Is(err, engine.ErrNoInputs),
		errors.Is(err, engine.ErrTooManyInputs):
		return &Error{Code: CodeInsufficientFunds, Message: err.Error()}
	case errors.Is(err, engine.ErrAlreadyRegistered),
		errors.Is(err, walletstore.ErrConflict):
		return &Error{Code: CodeConflict, Message: err.Error()}
	case errors.Is(err, walletstore.ErrNotFound),
		errors.Is(err, ledger.ErrNotFound):
		return &Error{Code: CodeNotFound, Message: err.Error()}
	case errors.Is(err, ledger.ErrOutputSpent):
		return &Error{Code: CodeOutputSpent, Message: err.Error()}
	case errors.Is(err, ledger.ErrRejected):
		return &Error{Code: CodeRejected, Message: err.Error()}
	}

	s.logger.Error().Err(err).Str("op", op).Msg("RPC request failed")
	return &Error{Code: CodeInternalError, Message: err.Error()}
}
