package tx

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Klingon-tech/cryptoken/pkg/crypto"
	"github.com/Klingon-tech/cryptoken/pkg/types"
)

// mockProvider implements OutputProvider for testing.
type mockProvider struct {
	outputs map[types.Outpoint]*SpendableOutput
}

func newMockProvider() *mockProvider {
	return &mockProvider{outputs: make(map[types.Outpoint]*SpendableOutput)}
}

func (m *mockProvider) add(op types.Outpoint, owner string, amount uint64, asset types.Asset) {
	m.outputs[op] = &SpendableOutput{
		Output: Output{PublicKeys: []string{owner}, Amount: amount},
		Asset:  asset,
	}
}

func (m *mockProvider) GetOutput(op types.Outpoint) (*SpendableOutput, error) {
	out, ok := m.outputs[op]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return out, nil
}

func (m *mockProvider) HasOutput(op types.Outpoint) bool {
	_, ok := m.outputs[op]
	return ok
}

func signedTransfer(t *testing.T, key *crypto.PrivateKey, asset types.Asset, ins []types.Outpoint, outs ...uint64) *Transaction {
	t.Helper()
	b := NewTransfer(Metadata{Asset: asset})
	for _, op := range ins {
		b.AddInput(op, key.PublicKeyString())
	}
	for _, amt := range outs {
		b.AddOutput("recipient", amt)
	}
	if err := b.Sign(key); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return b.Build()
}

func TestValidateWithOutputs_Valid(t *testing.T) {
	key, _ := crypto.GenerateKey()
	op := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	p := newMockProvider()
	p.add(op, key.PublicKeyString(), 1000, types.AssetFiat)

	tx := signedTransfer(t, key, types.AssetFiat, []types.Outpoint{op}, 600, 400)
	if err := tx.ValidateWithOutputs(p); err != nil {
		t.Errorf("ValidateWithOutputs: %v", err)
	}
}

func TestValidateWithOutputs_MultipleInputs(t *testing.T) {
	key, _ := crypto.GenerateKey()
	op1 := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	op2 := types.Outpoint{TxID: types.Hash{0x02}, Index: 1}
	p := newMockProvider()
	p.add(op1, key.PublicKeyString(), 300, types.AssetToken)
	p.add(op2, key.PublicKeyString(), 700, types.AssetToken)

	tx := signedTransfer(t, key, types.AssetToken, []types.Outpoint{op1, op2}, 1000)
	if err := tx.ValidateWithOutputs(p); err != nil {
		t.Errorf("ValidateWithOutputs: %v", err)
	}
}

func TestValidateWithOutputs_Errors(t *testing.T) {
	key, _ := crypto.GenerateKey()
	other, _ := crypto.GenerateKey()
	op := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}

	tests := []struct {
		name  string
		setup func(p *mockProvider)
		asset types.Asset
		outs  []uint64
		want  error
	}{
		{
			name:  "not found",
			setup: func(p *mockProvider) {},
			asset: types.AssetFiat,
			outs:  []uint64{100},
			want:  ErrInputNotFound,
		},
		{
			name: "spent",
			setup: func(p *mockProvider) {
				p.add(op, key.PublicKeyString(), 100, types.AssetFiat)
				p.outputs[op].Spent = true
			},
			asset: types.AssetFiat,
			outs:  []uint64{100},
			want:  ErrInputSpent,
		},
		{
			name: "owner mismatch",
			setup: func(p *mockProvider) {
				p.add(op, other.PublicKeyString(), 100, types.AssetFiat)
			},
			asset: types.AssetFiat,
			outs:  []uint64{100},
			want:  ErrOwnerMismatch,
		},
		{
			name: "asset mismatch",
			setup: func(p *mockProvider) {
				p.add(op, key.PublicKeyString(), 100, types.AssetToken)
			},
			asset: types.AssetFiat,
			outs:  []uint64{100},
			want:  ErrAssetMismatch,
		},
		{
			name: "outputs exceed inputs",
			setup: func(p *mockProvider) {
				p.add(op, key.PublicKeyString(), 100, types.AssetFiat)
			},
			asset: types.AssetFiat,
			outs:  []uint64{101},
			want:  ErrUnbalanced,
		},
		{
			name: "inputs exceed outputs",
			setup: func(p *mockProvider) {
				p.add(op, key.PublicKeyString(), 100, types.AssetFiat)
			},
			asset: types.AssetFiat,
			outs:  []uint64{60},
			want:  ErrUnbalanced,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newMockProvider()
			tt.setup(p)
			tx := signedTransfer(t, key, tt.asset, []types.Outpoint{op}, tt.outs...)
			err := tx.ValidateWithOutputs(p)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidateWithOutputs_IDMismatch(t *testing.T) {
	key, _ := crypto.GenerateKey()
	op := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	p := newMockProvider()
	p.add(op, key.PublicKeyString(), 100, types.AssetFiat)

	tx := signedTransfer(t, key, types.AssetFiat, []types.Outpoint{op}, 100)
	tx.ID = types.Hash{0xde, 0xad}
	if err := tx.ValidateWithOutputs(p); !errors.Is(err, ErrIDMismatch) {
		t.Errorf("expected ErrIDMismatch, got: %v", err)
	}
}

func TestValidateWithOutputs_InvalidSignature(t *testing.T) {
	key, _ := crypto.GenerateKey()
	op := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	p := newMockProvider()
	p.add(op, key.PublicKeyString(), 100, types.AssetFiat)

	tx := signedTransfer(t, key, types.AssetFiat, []types.Outpoint{op}, 100)
	tx.Inputs[0].Signature[5] ^= 0x01
	if err := tx.ValidateWithOutputs(p); !errors.Is(err, ErrInvalidSig) {
		t.Errorf("expected ErrInvalidSig, got: %v", err)
	}
}

func TestValidateWithOutputs_CreateSkipsLookups(t *testing.T) {
	key, _ := crypto.GenerateKey()
	issuer := key.PublicKeyString()
	b := NewCreate(types.AssetFiat, 1000, issuer, Metadata{Description: "MYR_ORIGIN"})
	b.AddOutput(issuer, 1000)
	b.Sign(key)

	if err := b.Build().ValidateWithOutputs(newMockProvider()); err != nil {
		t.Errorf("create should validate without outputs: %v", err)
	}
}

func TestValidateWithOutputs_StructuralFailure(t *testing.T) {
	tx := &Transaction{Operation: OpTransfer, Metadata: Metadata{Asset: types.AssetFiat}}
	if err := tx.ValidateWithOutputs(newMockProvider()); !errors.Is(err, ErrNoInputs) {
		t.Errorf("expected ErrNoInputs, got: %v", err)
	}
}
