package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/Klingon-tech/cryptoken/internal/ledger"
	"github.com/Klingon-tech/cryptoken/pkg/crypto"
	"github.com/Klingon-tech/cryptoken/pkg/tx"
	"github.com/Klingon-tech/cryptoken/pkg/types"
)

// TransferRequest describes a single transfer. Inputs, at most
// tx.MaxInputs of them, are spent whole; Payment goes to To and Remaining
// comes back to From as change.
type TransferRequest struct {
	Asset     types.Asset
	Inputs    []UnspentOutput
	From      string
	FromKey   crypto.Signer
	To        string
	Payment   uint64
	Remaining uint64
	Metadata  tx.Metadata
}

// BuildTransfer builds, signs and commits a transfer. With change, the
// change output comes first and the payment second; without change there
// is a single payment output. The inputs must sum to Payment + Remaining.
func (e *Engine) BuildTransfer(ctx context.Context, req TransferRequest) (*ledger.CommitResult, error) {
	t, err := e.buildTransfer(req)
	if err != nil {
		return nil, err
	}
	return e.commit(ctx, t)
}

func (e *Engine) buildTransfer(req TransferRequest) (*tx.Transaction, error) {
	if len(req.Inputs) == 0 {
		return nil, ErrNoInputs
	}
	if len(req.Inputs) > tx.MaxInputs {
		return nil, fmt.Errorf("%w: %d inputs, max %d", ErrTooManyInputs, len(req.Inputs), tx.MaxInputs)
	}
	if req.Payment == 0 {
		return nil, ErrInvalidAmount
	}
	if req.FromKey == nil {
		return nil, fmt.Errorf("transfer from %s: no signing key", req.From)
	}
	if req.Payment > math.MaxUint64-req.Remaining {
		return nil, fmt.Errorf("payment %d + change %d: %w", req.Payment, req.Remaining, ErrAmountOverflow)
	}
	total, err := sumOutputs(req.Inputs)
	if err != nil {
		return nil, err
	}
	if total != req.Payment+req.Remaining {
		return nil, fmt.Errorf("%w: inputs=%d payment=%d change=%d", ErrUnbalanced, total, req.Payment, req.Remaining)
	}

	md := req.Metadata
	md.Asset = req.Asset
	b := tx.NewTransfer(md)
	for _, in := range req.Inputs {
		b.AddInput(in.Outpoint(), req.From)
	}
	if req.Remaining != 0 {
		b.AddOutput(req.From, req.Remaining)
	}
	b.AddOutput(req.To, req.Payment)

	if err := b.Sign(req.FromKey); err != nil {
		return nil, err
	}
	return b.Build(), nil
}

// commit submits a signed transaction and logs the outcome.
func (e *Engine) commit(ctx context.Context, t *tx.Transaction) (*ledger.CommitResult, error) {
	res, err := e.ledger.CommitTransaction(ctx, t)
	if err != nil {
		e.logger.Warn().Err(err).
			Str("tx_id", t.ID.String()).
			Str("asset", string(t.Metadata.Asset)).
			Str("operation", string(t.Operation)).
			Msg("Commit failed")
		return nil, fmt.Errorf("commit %s: %w", t.ID, err)
	}
	e.logger.Info().
		Str("tx_id", res.ID.String()).
		Str("asset", string(t.Metadata.Asset)).
		Str("operation", string(t.Operation)).
		Int("inputs", len(t.Inputs)).
		Int("outputs", len(t.Outputs)).
		Msg("Transaction committed")
	return res, nil
}
