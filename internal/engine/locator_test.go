package engine

import (
	"testing"

	"github.com/Klingon-tech/cryptoken/pkg/types"
)

func TestFindUnspent_Empty(t *testing.T) {
	f := newFixture(t)
	w, _ := f.register(t, "empty")

	before := f.hook.fetchCount()
	outs, err := f.eng.FindUnspent(f.ctx, w.PublicKey, types.AssetToken)
	if err != nil {
		t.Fatalf("FindUnspent: %v", err)
	}
	if outs == nil || len(outs) != 0 {
		t.Errorf("outs = %v, want empty slice", outs)
	}
	if f.hook.fetchCount() != before {
		t.Error("no transaction lookups expected for an empty output set")
	}
}

func TestFindUnspent_FiltersByAsset(t *testing.T) {
	f := newFixture(t)
	w, _ := f.register(t, "mixed")

	f.grant(t, types.AssetFiat, w.PublicKey, 100)
	f.grant(t, types.AssetFiat, w.PublicKey, 50)
	f.grant(t, types.AssetToken, w.PublicKey, 7)

	fiat, err := f.eng.FindUnspent(f.ctx, w.PublicKey, types.AssetFiat)
	if err != nil {
		t.Fatalf("FindUnspent: %v", err)
	}
	if len(fiat) != 2 {
		t.Fatalf("MYR outputs = %d, want 2", len(fiat))
	}
	for _, u := range fiat {
		if u.Tx.Metadata.Asset != types.AssetFiat {
			t.Errorf("output %s has asset %s", u.Outpoint(), u.Tx.Metadata.Asset)
		}
		if !u.Output().OwnedBy(w.PublicKey) {
			t.Errorf("output %s not owned by wallet", u.Outpoint())
		}
	}

	tokens, _ := f.eng.FindUnspent(f.ctx, w.PublicKey, types.AssetToken)
	if len(tokens) != 1 || tokens[0].Output().Amount != 7 {
		t.Errorf("CTOKEN outputs = %+v", tokens)
	}
}

func TestFindUnspent_FetchesEachTransactionOnce(t *testing.T) {
	f := newFixture(t)
	w, secretKey := f.register(t, "self")
	f.grant(t, types.AssetToken, w.PublicKey, 10)

	// A transfer to self leaves change and payment in one transaction.
	if _, err := f.eng.TransferToken(f.ctx, w, w.PublicKey, 4, secretKey); err != nil {
		t.Fatalf("TransferToken: %v", err)
	}

	before := f.hook.fetchCount()
	outs, err := f.eng.FindUnspent(f.ctx, w.PublicKey, types.AssetToken)
	if err != nil {
		t.Fatalf("FindUnspent: %v", err)
	}
	if len(outs) != 2 || outs[0].Tx.ID != outs[1].Tx.ID {
		t.Fatalf("outs = %+v, want two outputs of one transaction", outs)
	}
	if got := f.hook.fetchCount() - before; got != 1 {
		t.Errorf("GetTransaction calls = %d, want 1", got)
	}
	if got := f.balance(t, w.PublicKey, types.AssetToken); got != 10 {
		t.Errorf("balance = %d, want 10", got)
	}
}
