package tx

import (
	"errors"
	"fmt"
	"math"

	"github.com/Klingon-tech/cryptoken/pkg/crypto"
	"github.com/Klingon-tech/cryptoken/pkg/types"
)

// Structural limits.
const (
	MaxInputs  = 1000
	MaxOutputs = 1000
)

// Validation errors.
var (
	ErrNoInputs         = errors.New("transaction has no inputs")
	ErrNoOutputs        = errors.New("transaction has no outputs")
	ErrDuplicateInput   = errors.New("duplicate input")
	ErrOutputOverflow   = errors.New("output values overflow")
	ErrZeroOutput       = errors.New("output value is zero")
	ErrMissingOwner     = errors.New("missing owner public key")
	ErrMissingSig       = errors.New("input missing signature")
	ErrInvalidSig       = errors.New("invalid signature")
	ErrTooManyInputs    = errors.New("too many inputs")
	ErrTooManyOutputs   = errors.New("too many outputs")
	ErrUnknownOperation = errors.New("unknown operation")
	ErrUnknownAsset     = errors.New("unknown asset")
	ErrBadCreate        = errors.New("malformed create transaction")
	ErrMissingFulfills  = errors.New("transfer input does not reference an output")
	ErrSupplyMismatch   = errors.New("create outputs do not sum to supply")
)

// Validate checks transaction structure and basic rules.
// This does NOT check output existence (that requires the ledger).
func (tx *Transaction) Validate() error {
	if !tx.Metadata.Asset.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownAsset, tx.Metadata.Asset)
	}
	if len(tx.Inputs) == 0 {
		return ErrNoInputs
	}
	if len(tx.Outputs) == 0 {
		return ErrNoOutputs
	}
	if len(tx.Inputs) > MaxInputs {
		return fmt.Errorf("%w: %d inputs, max %d", ErrTooManyInputs, len(tx.Inputs), MaxInputs)
	}
	if len(tx.Outputs) > MaxOutputs {
		return fmt.Errorf("%w: %d outputs, max %d", ErrTooManyOutputs, len(tx.Outputs), MaxOutputs)
	}

	for i, in := range tx.Inputs {
		if len(in.OwnersBefore) != 1 || in.OwnersBefore[0] == "" {
			return fmt.Errorf("input %d: %w", i, ErrMissingOwner)
		}
		if len(in.Signature) == 0 {
			return fmt.Errorf("input %d: %w", i, ErrMissingSig)
		}
	}

	var totalOutput uint64
	for i, out := range tx.Outputs {
		if len(out.PublicKeys) != 1 || out.PublicKeys[0] == "" {
			return fmt.Errorf("output %d: %w", i, ErrMissingOwner)
		}
		if out.Amount == 0 {
			return fmt.Errorf("output %d: %w", i, ErrZeroOutput)
		}
		if totalOutput > math.MaxUint64-out.Amount {
			return fmt.Errorf("output %d: %w", i, ErrOutputOverflow)
		}
		totalOutput += out.Amount
	}

	switch tx.Operation {
	case OpCreate:
		if len(tx.Inputs) != 1 || tx.Inputs[0].Fulfills != nil || tx.Asset == nil {
			return ErrBadCreate
		}
		if tx.Asset.Supply != totalOutput {
			return fmt.Errorf("%w: supply=%d outputs=%d", ErrSupplyMismatch, tx.Asset.Supply, totalOutput)
		}
	case OpTransfer:
		if tx.Asset != nil {
			return fmt.Errorf("%w: transfer carries asset data", ErrBadCreate)
		}
		seen := make(map[types.Outpoint]bool, len(tx.Inputs))
		for i, in := range tx.Inputs {
			if in.Fulfills == nil {
				return fmt.Errorf("input %d: %w", i, ErrMissingFulfills)
			}
			if seen[*in.Fulfills] {
				return fmt.Errorf("input %d: %w", i, ErrDuplicateInput)
			}
			seen[*in.Fulfills] = true
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOperation, tx.Operation)
	}

	return nil
}

// VerifySignatures checks that all input signatures are valid for this
// transaction under the input's owner key.
func (tx *Transaction) VerifySignatures() error {
	hash := tx.Hash()
	for i, in := range tx.Inputs {
		if len(in.OwnersBefore) != 1 {
			return fmt.Errorf("input %d: %w", i, ErrMissingOwner)
		}
		pub, err := crypto.ParsePublicKey(in.OwnersBefore[0])
		if err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
		if !crypto.VerifySignature(hash[:], in.Signature, pub) {
			return fmt.Errorf("input %d: %w", i, ErrInvalidSig)
		}
	}
	return nil
}
