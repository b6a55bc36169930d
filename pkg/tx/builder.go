package tx

import (
	"fmt"

	"github.com/Klingon-tech/cryptoken/pkg/crypto"
	"github.com/Klingon-tech/cryptoken/pkg/types"
)

// Builder constructs transactions incrementally.
type Builder struct {
	tx *Transaction
}

// NewCreate starts a CREATE transaction that issues supply units of asset.
// The single input names the issuer; outputs are added by the caller.
func NewCreate(asset types.Asset, supply uint64, issuer string, md Metadata) *Builder {
	md.Asset = asset
	return &Builder{
		tx: &Transaction{
			Version:   Version,
			Operation: OpCreate,
			Asset:     &AssetData{Name: asset.DisplayName(), Supply: supply},
			Inputs:    []Input{{OwnersBefore: []string{issuer}}},
			Metadata:  md,
		},
	}
}

// NewTransfer starts a TRANSFER transaction. md.Asset must be set.
func NewTransfer(md Metadata) *Builder {
	return &Builder{
		tx: &Transaction{
			Version:   Version,
			Operation: OpTransfer,
			Metadata:  md,
		},
	}
}

// AddInput adds an input spending prevOut, owned by owner.
func (b *Builder) AddInput(prevOut types.Outpoint, owner string) *Builder {
	op := prevOut
	b.tx.Inputs = append(b.tx.Inputs, Input{
		Fulfills:     &op,
		OwnersBefore: []string{owner},
	})
	return b
}

// AddOutput adds an output paying amount to owner.
func (b *Builder) AddOutput(owner string, amount uint64) *Builder {
	b.tx.Outputs = append(b.tx.Outputs, Output{
		PublicKeys: []string{owner},
		Amount:     amount,
	})
	return b
}

// Sign signs all inputs with the provided private key and fixes the ID.
// Each input gets the same signature (single-key spending).
func (b *Builder) Sign(key crypto.Signer) error {
	hash := b.tx.Hash()
	sig, err := key.Sign(hash[:])
	if err != nil {
		return fmt.Errorf("sign tx: %w", err)
	}
	for i := range b.tx.Inputs {
		b.tx.Inputs[i].Signature = sig
	}
	b.tx.ID = hash
	return nil
}

// Build returns the constructed transaction.
// Does NOT validate; call tx.Validate() separately.
func (b *Builder) Build() *Transaction {
	if b.tx.ID.IsZero() {
		b.tx.ID = b.tx.Hash()
	}
	return b.tx
}
