package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/Klingon-tech/cryptoken/internal/storage"
	"github.com/Klingon-tech/cryptoken/internal/utxo"
	"github.com/Klingon-tech/cryptoken/pkg/crypto"
	"github.com/Klingon-tech/cryptoken/pkg/tx"
	"github.com/Klingon-tech/cryptoken/pkg/types"
)

func newKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return key
}

func mustCommit(t *testing.T, l Ledger, txn *tx.Transaction) *CommitResult {
	t.Helper()
	res, err := l.CommitTransaction(context.Background(), txn)
	if err != nil {
		t.Fatalf("CommitTransaction: %v", err)
	}
	return res
}

func genesisTx(t *testing.T, issuer *crypto.PrivateKey, asset types.Asset, supply uint64, datetime string) *tx.Transaction {
	t.Helper()
	pub := issuer.PublicKeyString()
	b := tx.NewCreate(asset, supply, pub, tx.Metadata{Description: string(asset) + "_ORIGIN", Datetime: datetime}).
		AddOutput(pub, supply)
	if err := b.Sign(issuer); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return b.Build()
}

func transferTx(t *testing.T, from *crypto.PrivateKey, asset types.Asset, prev []types.Outpoint, pays map[string]uint64, note string) *tx.Transaction {
	t.Helper()
	b := tx.NewTransfer(tx.Metadata{Asset: asset, Description: note})
	for _, op := range prev {
		b.AddInput(op, from.PublicKeyString())
	}
	for to, amount := range pays {
		b.AddOutput(to, amount)
	}
	if err := b.Sign(from); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return b.Build()
}

func TestLocal_CommitGenesis(t *testing.T) {
	l := NewLocal(storage.NewMemory())
	issuer := newKey(t)
	ctx := context.Background()

	gen := genesisTx(t, issuer, types.AssetToken, 1000, "t0")
	res := mustCommit(t, l, gen)
	if res.ID != gen.ID {
		t.Fatalf("commit id = %s, want %s", res.ID, gen.ID)
	}
	if res.Operation != tx.OpCreate || res.Asset != types.AssetToken {
		t.Errorf("result = %+v", res)
	}

	id, err := l.Genesis(types.AssetToken)
	if err != nil || id != gen.ID {
		t.Fatalf("Genesis = %s, %v", id, err)
	}
	if _, err := l.Genesis(types.AssetFiat); !errors.Is(err, ErrNotFound) {
		t.Errorf("fiat Genesis err = %v, want ErrNotFound", err)
	}

	refs, err := l.QueryOutputs(ctx, issuer.PublicKeyString(), Bool(false))
	if err != nil {
		t.Fatalf("QueryOutputs: %v", err)
	}
	if len(refs) != 1 || refs[0] != gen.Outpoint(0) {
		t.Fatalf("refs = %v", refs)
	}

	got, err := l.GetTransaction(ctx, gen.ID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if got.Hash() != gen.ID || got.Metadata.Asset != types.AssetToken {
		t.Errorf("stored transaction differs: %+v", got)
	}

	circ, err := l.Circulating(types.AssetToken)
	if err != nil || circ != 1000 {
		t.Errorf("Circulating = %d, %v", circ, err)
	}
}

func TestLocal_GenesisOnlyOnce(t *testing.T) {
	l := NewLocal(storage.NewMemory())
	issuer := newKey(t)

	mustCommit(t, l, genesisTx(t, issuer, types.AssetFiat, 500, "t0"))

	_, err := l.CommitTransaction(context.Background(), genesisTx(t, issuer, types.AssetFiat, 500, "t1"))
	if !errors.Is(err, ErrRejected) || !errors.Is(err, ErrAlreadyIssued) {
		t.Fatalf("second genesis err = %v, want ErrAlreadyIssued", err)
	}
	// The other asset is still issuable.
	mustCommit(t, l, genesisTx(t, issuer, types.AssetToken, 500, "t0"))
}

func TestLocal_GenesisMustPayIssuer(t *testing.T) {
	l := NewLocal(storage.NewMemory())
	issuer, other := newKey(t), newKey(t)

	b := tx.NewCreate(types.AssetToken, 10, issuer.PublicKeyString(), tx.Metadata{}).
		AddOutput(other.PublicKeyString(), 10)
	if err := b.Sign(issuer); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := l.CommitTransaction(context.Background(), b.Build()); !errors.Is(err, ErrRejected) {
		t.Fatalf("err = %v, want ErrRejected", err)
	}
}

func TestLocal_Transfer(t *testing.T) {
	l := NewLocal(storage.NewMemory())
	alice, bob := newKey(t), newKey(t)
	ctx := context.Background()

	gen := genesisTx(t, alice, types.AssetToken, 1000, "t0")
	mustCommit(t, l, gen)

	xfer := transferTx(t, alice, types.AssetToken, []types.Outpoint{gen.Outpoint(0)},
		map[string]uint64{alice.PublicKeyString(): 700, bob.PublicKeyString(): 300}, "pay")
	mustCommit(t, l, xfer)

	spent, err := l.QueryOutputs(ctx, alice.PublicKeyString(), Bool(true))
	if err != nil {
		t.Fatalf("QueryOutputs: %v", err)
	}
	if len(spent) != 1 || spent[0] != gen.Outpoint(0) {
		t.Errorf("spent = %v, want genesis output", spent)
	}

	all, _ := l.QueryOutputs(ctx, alice.PublicKeyString(), nil)
	if len(all) != 2 {
		t.Errorf("all alice outputs = %d, want 2", len(all))
	}

	bobs, _ := l.QueryOutputs(ctx, bob.PublicKeyString(), Bool(false))
	if len(bobs) != 1 || bobs[0].TxID != xfer.ID {
		t.Errorf("bob outputs = %v", bobs)
	}

	circ, _ := l.Circulating(types.AssetToken)
	if circ != 1000 {
		t.Errorf("Circulating = %d, want 1000", circ)
	}
	n, _ := l.TxCount()
	if n != 2 {
		t.Errorf("TxCount = %d, want 2", n)
	}
}

func TestLocal_Rejections(t *testing.T) {
	l := NewLocal(storage.NewMemory())
	alice, bob := newKey(t), newKey(t)

	gen := genesisTx(t, alice, types.AssetToken, 1000, "t0")
	mustCommit(t, l, gen)
	prev := []types.Outpoint{gen.Outpoint(0)}

	unknown := types.Outpoint{TxID: crypto.Hash([]byte("nope"))}

	tests := []struct {
		name string
		txn  *tx.Transaction
		want error
	}{
		{"unbalanced", transferTx(t, alice, types.AssetToken, prev, map[string]uint64{bob.PublicKeyString(): 999}, ""), tx.ErrUnbalanced},
		{"wrong owner", transferTx(t, bob, types.AssetToken, prev, map[string]uint64{bob.PublicKeyString(): 1000}, ""), tx.ErrOwnerMismatch},
		{"asset mismatch", transferTx(t, alice, types.AssetFiat, prev, map[string]uint64{bob.PublicKeyString(): 1000}, ""), tx.ErrAssetMismatch},
		{"unknown input", transferTx(t, alice, types.AssetToken, []types.Outpoint{unknown}, map[string]uint64{bob.PublicKeyString(): 1}, ""), tx.ErrInputNotFound},
		{"bad output key", transferTx(t, alice, types.AssetToken, prev, map[string]uint64{"not/a/key": 1000}, ""), ErrRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.CommitTransaction(context.Background(), tt.txn)
			if !errors.Is(err, ErrRejected) {
				t.Fatalf("err = %v, want ErrRejected", err)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	// Nothing was applied.
	refs, _ := l.QueryOutputs(context.Background(), alice.PublicKeyString(), Bool(false))
	if len(refs) != 1 {
		t.Errorf("alice unspent = %d, want 1", len(refs))
	}
}

func TestLocal_TamperedID(t *testing.T) {
	l := NewLocal(storage.NewMemory())
	alice := newKey(t)
	gen := genesisTx(t, alice, types.AssetToken, 1000, "t0")
	gen.ID = crypto.Hash([]byte("other"))

	_, err := l.CommitTransaction(context.Background(), gen)
	if !errors.Is(err, tx.ErrIDMismatch) {
		t.Fatalf("err = %v, want ErrIDMismatch", err)
	}
}

func TestLocal_DoubleSpend(t *testing.T) {
	l := NewLocal(storage.NewMemory())
	alice, bob, carol := newKey(t), newKey(t), newKey(t)

	gen := genesisTx(t, alice, types.AssetToken, 100, "t0")
	mustCommit(t, l, gen)
	prev := []types.Outpoint{gen.Outpoint(0)}

	mustCommit(t, l, transferTx(t, alice, types.AssetToken, prev, map[string]uint64{bob.PublicKeyString(): 100}, ""))

	_, err := l.CommitTransaction(context.Background(),
		transferTx(t, alice, types.AssetToken, prev, map[string]uint64{carol.PublicKeyString(): 100}, ""))
	if !errors.Is(err, ErrOutputSpent) {
		t.Fatalf("err = %v, want ErrOutputSpent", err)
	}
	if ErrorCode(err) != CodeOutputSpent {
		t.Errorf("ErrorCode = %d, want %d", ErrorCode(err), CodeOutputSpent)
	}
}

func TestLocal_ConcurrentDoubleSpend(t *testing.T) {
	l := NewLocal(storage.NewMemory())
	alice, bob := newKey(t), newKey(t)

	gen := genesisTx(t, alice, types.AssetToken, 100, "t0")
	mustCommit(t, l, gen)
	prev := []types.Outpoint{gen.Outpoint(0)}

	const n = 8
	txs := make([]*tx.Transaction, n)
	for i := range txs {
		txs[i] = transferTx(t, alice, types.AssetToken, prev, map[string]uint64{bob.PublicKeyString(): 100}, fmt.Sprintf("attempt %d", i))
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range txs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = l.CommitTransaction(context.Background(), txs[i])
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, ErrOutputSpent):
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("%d commits succeeded, want exactly 1", ok)
	}
	circ, _ := l.Circulating(types.AssetToken)
	if circ != 100 {
		t.Errorf("Circulating = %d, want 100", circ)
	}
}

func TestLocal_NotFound(t *testing.T) {
	l := NewLocal(storage.NewMemory())
	_, err := l.GetTransaction(context.Background(), crypto.Hash([]byte("missing")))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	refs, err := l.QueryOutputs(context.Background(), newKey(t).PublicKeyString(), nil)
	if err != nil || len(refs) != 0 {
		t.Errorf("QueryOutputs on unknown key = %v, %v", refs, err)
	}
}

func TestLocal_InvalidRequests(t *testing.T) {
	l := NewLocal(storage.NewMemory())
	ctx := context.Background()

	if _, err := l.QueryOutputs(ctx, "", nil); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("empty key err = %v", err)
	}
	if _, err := l.CommitTransaction(ctx, nil); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("nil tx err = %v", err)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := l.QueryOutputs(canceled, "x", nil); !errors.Is(err, context.Canceled) {
		t.Errorf("canceled err = %v", err)
	}
}

func TestLocal_PrefixIsolation(t *testing.T) {
	root := storage.NewMemory()
	mainnet := NewLocal(storage.NewPrefixDB(root, []byte("mainnet/")))
	testnet := NewLocal(storage.NewPrefixDB(root, []byte("testnet/")))
	issuer := newKey(t)

	mustCommit(t, mainnet, genesisTx(t, issuer, types.AssetToken, 10, "t0"))

	if _, err := testnet.Genesis(types.AssetToken); !errors.Is(err, ErrNotFound) {
		t.Errorf("testnet sees mainnet genesis: %v", err)
	}
	mustCommit(t, testnet, genesisTx(t, issuer, types.AssetToken, 10, "t0"))
}

func TestLocal_Commitment(t *testing.T) {
	l := NewLocal(storage.NewMemory())
	alice, bob := newKey(t), newKey(t)

	empty, err := l.Commitment()
	if err != nil || !empty.IsZero() {
		t.Fatalf("empty commitment = %s, %v", empty, err)
	}

	gen := genesisTx(t, alice, types.AssetToken, 10, "t0")
	mustCommit(t, l, gen)
	c1, _ := l.Commitment()

	mustCommit(t, l, transferTx(t, alice, types.AssetToken, []types.Outpoint{gen.Outpoint(0)}, map[string]uint64{bob.PublicKeyString(): 10}, ""))
	c2, _ := l.Commitment()

	if c1.IsZero() || c1 == c2 {
		t.Errorf("commitment did not change: %s -> %s", c1, c2)
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("x: %w", ErrNotFound), CodeNotFound},
		{ErrOutputSpent, CodeOutputSpent},
		{fmt.Errorf("%w: %w", ErrRejected, ErrAlreadyIssued), CodeRejected},
		{ErrInvalidRequest, CodeInvalidParams},
		{errors.New("boom"), CodeInternalError},
	}
	for _, tt := range tests {
		if got := ErrorCode(tt.err); got != tt.code {
			t.Errorf("ErrorCode(%v) = %d, want %d", tt.err, got, tt.code)
		}
		if kind := errorForCode(tt.code); kind != nil && !errors.Is(tt.err, kind) {
			t.Errorf("errorForCode(%d) = %v, does not match %v", tt.code, kind, tt.err)
		}
	}
}

func TestLocal_CirculatingOverflow(t *testing.T) {
	db := storage.NewMemory()
	l := NewLocal(db)
	outputs := utxo.NewStore(db)

	for i, amount := range []uint64{math.MaxUint64, 1} {
		rec := &utxo.Record{
			Outpoint:   types.Outpoint{TxID: types.Hash{byte(i + 1)}},
			PublicKeys: []string{"owner"},
			Amount:     amount,
			Asset:      types.AssetToken,
		}
		if err := outputs.Put(rec); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	if _, err := l.Circulating(types.AssetToken); !errors.Is(err, ErrAmountOverflow) {
		t.Errorf("err = %v, want ErrAmountOverflow", err)
	}
	if circ, err := l.Circulating(types.AssetFiat); err != nil || circ != 0 {
		t.Errorf("MYR circulating = %d, %v; want 0", circ, err)
	}
}
