package engine

import (
	"fmt"
	"sort"

	"github.com/Klingon-tech/cryptoken/pkg/tx"
)

// inputSelection holds the outputs chosen to fund a payment.
type inputSelection struct {
	inputs []UnspentOutput
	total  uint64 // Sum of selected amounts.
}

// change returns what the selection leaves over target.
func (s *inputSelection) change(target uint64) uint64 {
	return s.total - target
}

// selectInputs chooses outputs to fund target with at most tx.MaxInputs
// inputs. outs must sum without overflow. It tries two strategies:
//  1. Single output: the smallest output that covers target.
//  2. Largest-first accumulation: adds the largest outputs until target is met.
//
// The one leaving less change wins. When target is covered only by more
// than tx.MaxInputs outputs, it returns the tx.MaxInputs largest outputs
// together with ErrTooManyInputs so the caller can consolidate them.
func selectInputs(outs []UnspentOutput, target uint64) (*inputSelection, error) {
	if target == 0 {
		return nil, ErrInvalidAmount
	}

	candidates := make([]UnspentOutput, 0, len(outs))
	for _, u := range outs {
		if u.Output().Amount > 0 {
			candidates = append(candidates, u)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoInputs
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Output().Amount < candidates[j].Output().Amount
	})

	var single *inputSelection
	for _, u := range candidates {
		if a := u.Output().Amount; a >= target {
			single = &inputSelection{inputs: []UnspentOutput{u}, total: a}
			break
		}
	}

	var accum *inputSelection
	var selected []UnspentOutput
	var total uint64
	for i := len(candidates) - 1; i >= 0 && len(selected) < tx.MaxInputs; i-- {
		a := candidates[i].Output().Amount
		selected = append(selected, candidates[i])
		total += a
		if total >= target {
			accum = &inputSelection{inputs: selected, total: total}
			break
		}
	}

	switch {
	case single != nil && accum != nil:
		if single.change(target) <= accum.change(target) {
			return single, nil
		}
		return accum, nil
	case single != nil:
		return single, nil
	case accum != nil:
		return accum, nil
	case len(candidates) > tx.MaxInputs:
		return &inputSelection{inputs: selected, total: total},
			fmt.Errorf("%w: %d outputs do not cover %d", ErrTooManyInputs, len(selected), target)
	default:
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, total, target)
	}
}
