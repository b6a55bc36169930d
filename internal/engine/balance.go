package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/Klingon-tech/cryptoken/pkg/types"
)

// BalanceOf returns the sum of owner's unspent outputs of asset that are
// owned by owner alone.
func (e *Engine) BalanceOf(ctx context.Context, owner string, asset types.Asset) (uint64, error) {
	outs, err := e.FindUnspent(ctx, owner, asset)
	if err != nil {
		return 0, err
	}
	owned := ownedBy(outs, owner)
	return sumOutputs(owned)
}

// ownedBy filters outs to those whose single owner is owner.
func ownedBy(outs []UnspentOutput, owner string) []UnspentOutput {
	owned := outs[:0:0]
	for _, u := range outs {
		if u.Output().OwnedBy(owner) {
			owned = append(owned, u)
		}
	}
	return owned
}

// sumOutputs adds the referenced output amounts.
func sumOutputs(outs []UnspentOutput) (uint64, error) {
	var total uint64
	for _, u := range outs {
		amount := u.Output().Amount
		if total > math.MaxUint64-amount {
			return 0, fmt.Errorf("sum of %d outputs: %w", len(outs), ErrAmountOverflow)
		}
		total += amount
	}
	return total, nil
}
