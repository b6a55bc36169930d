package tx

import (
	"errors"
	"fmt"
	"math"

	"github.com/Klingon-tech/cryptoken/pkg/types"
)

// Ledger-aware validation errors.
var (
	ErrInputNotFound = errors.New("input output not found")
	ErrInputSpent    = errors.New("input output already spent")
	ErrInputOverflow = errors.New("input values overflow")
	ErrOwnerMismatch = errors.New("input owner does not match output")
	ErrAssetMismatch = errors.New("input asset does not match transaction")
	ErrUnbalanced    = errors.New("inputs and outputs do not balance")
	ErrIDMismatch    = errors.New("transaction id does not match contents")
)

// SpendableOutput is what a provider reports about a referenced output.
type SpendableOutput struct {
	Output Output
	Asset  types.Asset
	Spent  bool
}

// OutputProvider gives read-only access to recorded outputs for validation.
type OutputProvider interface {
	GetOutput(outpoint types.Outpoint) (*SpendableOutput, error)
	HasOutput(outpoint types.Outpoint) bool
}

// ValidateWithOutputs performs full validation of a transaction against
// recorded outputs. It checks structure, the ID, signatures, and for
// TRANSFER that each input exists unspent, belongs to the signer, carries
// the same asset, and that inputs equal outputs exactly.
func (tx *Transaction) ValidateWithOutputs(provider OutputProvider) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	if tx.ID != tx.Hash() {
		return ErrIDMismatch
	}
	if err := tx.VerifySignatures(); err != nil {
		return err
	}
	if tx.Operation == OpCreate {
		return nil
	}

	var totalInput uint64
	for i, in := range tx.Inputs {
		op := *in.Fulfills
		if !provider.HasOutput(op) {
			return fmt.Errorf("input %d (%s): %w", i, op, ErrInputNotFound)
		}
		prev, err := provider.GetOutput(op)
		if err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
		if prev.Spent {
			return fmt.Errorf("input %d (%s): %w", i, op, ErrInputSpent)
		}
		if !prev.Output.OwnedBy(in.OwnersBefore[0]) {
			return fmt.Errorf("input %d (%s): %w", i, op, ErrOwnerMismatch)
		}
		if prev.Asset != tx.Metadata.Asset {
			return fmt.Errorf("input %d (%s): %w: %s != %s", i, op, ErrAssetMismatch, prev.Asset, tx.Metadata.Asset)
		}
		if totalInput > math.MaxUint64-prev.Output.Amount {
			return fmt.Errorf("input %d: %w", i, ErrInputOverflow)
		}
		totalInput += prev.Output.Amount
	}

	totalOutput, err := tx.TotalOutputValue()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOutputOverflow, err)
	}
	if totalInput != totalOutput {
		return fmt.Errorf("%w: inputs=%d outputs=%d", ErrUnbalanced, totalInput, totalOutput)
	}
	return nil
}
