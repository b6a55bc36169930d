package engine

import (
	"context"
	"fmt"

	"github.com/Klingon-tech/cryptoken/internal/ledger"
	"github.com/Klingon-tech/cryptoken/pkg/tx"
	"github.com/Klingon-tech/cryptoken/pkg/types"
)

// UnspentOutput is an unspent output together with the transaction that
// created it.
type UnspentOutput struct {
	Tx    *tx.Transaction
	Index uint32
}

// Outpoint returns the reference spent by an input.
func (u UnspentOutput) Outpoint() types.Outpoint {
	return u.Tx.Outpoint(u.Index)
}

// Output returns the referenced output.
func (u UnspentOutput) Output() tx.Output {
	return u.Tx.Outputs[u.Index]
}

// FindUnspent returns owner's unspent outputs of asset, in ledger order.
// Each creating transaction is fetched once.
func (e *Engine) FindUnspent(ctx context.Context, owner string, asset types.Asset) ([]UnspentOutput, error) {
	refs, err := e.ledger.QueryOutputs(ctx, owner, ledger.Bool(false))
	if err != nil {
		return nil, fmt.Errorf("query unspent outputs: %w", err)
	}
	if len(refs) == 0 {
		return []UnspentOutput{}, nil
	}

	fetched := make(map[types.Hash]*tx.Transaction, len(refs))
	outs := make([]UnspentOutput, 0, len(refs))
	for _, ref := range refs {
		t, ok := fetched[ref.TxID]
		if !ok {
			t, err = e.ledger.GetTransaction(ctx, ref.TxID)
			if err != nil {
				return nil, fmt.Errorf("fetch transaction %s: %w", ref.TxID, err)
			}
			fetched[ref.TxID] = t
		}
		if t.Metadata.Asset != asset {
			continue
		}
		if int(ref.Index) >= len(t.Outputs) {
			return nil, fmt.Errorf("ledger returned output %s beyond %d outputs", ref, len(t.Outputs))
		}
		outs = append(outs, UnspentOutput{Tx: t, Index: ref.Index})
	}
	return outs, nil
}
