package engine

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/Klingon-tech/cryptoken/internal/ledger"
	"github.com/Klingon-tech/cryptoken/internal/walletstore"
	"github.com/Klingon-tech/cryptoken/pkg/tx"
	"github.com/Klingon-tech/cryptoken/pkg/types"
)

func TestDeposit(t *testing.T) {
	f := newFixture(t)
	w, secretKey := f.register(t, "1")
	issuer := f.issuer(t, types.AssetFiat)

	res, err := f.eng.Deposit(f.ctx, w, 500, secretKey)
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	if got := f.balance(t, w.PublicKey, types.AssetFiat); got != 500 {
		t.Errorf("wallet MYR = %d, want 500", got)
	}
	if got := f.balance(t, issuer, types.AssetFiat); got != 999_999_999_500 {
		t.Errorf("issuer MYR = %d, want 999999999500", got)
	}

	txn, err := f.local.GetTransaction(f.ctx, res.ID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if !strings.HasPrefix(txn.Metadata.Description, "Deposit MYR 500 on ") {
		t.Errorf("description = %q", txn.Metadata.Description)
	}
	if len(txn.Outputs) != 2 || !txn.Outputs[0].OwnedBy(issuer) || !txn.Outputs[1].OwnedBy(w.PublicKey) {
		t.Errorf("outputs = %+v, want change to issuer then payment", txn.Outputs)
	}
}

func TestWithdraw(t *testing.T) {
	f := newFixture(t)
	w, secretKey := f.register(t, "1")
	f.grant(t, types.AssetFiat, w.PublicKey, 500)

	res, err := f.eng.Withdraw(f.ctx, w, 200, secretKey)
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if got := f.balance(t, w.PublicKey, types.AssetFiat); got != 300 {
		t.Errorf("wallet MYR = %d, want 300", got)
	}
	if got := f.balance(t, f.issuer(t, types.AssetFiat), types.AssetFiat); got != testSupply-300 {
		t.Errorf("issuer MYR = %d, want %d", got, testSupply-300)
	}

	txn, _ := f.local.GetTransaction(f.ctx, res.ID)
	if !strings.HasPrefix(txn.Metadata.Description, "Withdrew MYR 200 at ") {
		t.Errorf("description = %q", txn.Metadata.Description)
	}

	// Withdrawing everything leaves a single output and no change.
	res, err = f.eng.Withdraw(f.ctx, w, 300, secretKey)
	if err != nil {
		t.Fatalf("Withdraw all: %v", err)
	}
	txn, _ = f.local.GetTransaction(f.ctx, res.ID)
	if len(txn.Outputs) != 1 {
		t.Errorf("outputs = %d, want 1", len(txn.Outputs))
	}
	if got := f.balance(t, w.PublicKey, types.AssetFiat); got != 0 {
		t.Errorf("wallet MYR = %d, want 0", got)
	}
}

func TestTransferToken(t *testing.T) {
	f := newFixture(t)
	alice, aliceKey := f.register(t, "alice")
	bob, _ := f.register(t, "bob")
	f.grant(t, types.AssetToken, alice.PublicKey, 100)

	res, err := f.eng.TransferToken(f.ctx, alice, bob.PublicKey, 30, aliceKey)
	if err != nil {
		t.Fatalf("TransferToken: %v", err)
	}
	if got := f.balance(t, alice.PublicKey, types.AssetToken); got != 70 {
		t.Errorf("alice = %d, want 70", got)
	}
	if got := f.balance(t, bob.PublicKey, types.AssetToken); got != 30 {
		t.Errorf("bob = %d, want 30", got)
	}

	txn, _ := f.local.GetTransaction(f.ctx, res.ID)
	md := txn.Metadata
	if md.TransferTo != bob.PublicKey || md.From != alice.PublicKey || md.Remaining == nil || *md.Remaining != 70 {
		t.Errorf("metadata = %+v", md)
	}
}

func TestSellToken(t *testing.T) {
	f := newFixture(t)
	w, secretKey := f.register(t, "1")
	f.grant(t, types.AssetToken, w.PublicKey, 40)
	issuer := f.issuer(t, types.AssetToken)

	if _, err := f.eng.SellToken(f.ctx, w, 40, secretKey); err != nil {
		t.Fatalf("SellToken: %v", err)
	}
	if got := f.balance(t, w.PublicKey, types.AssetToken); got != 0 {
		t.Errorf("wallet = %d, want 0", got)
	}
	if got := f.balance(t, issuer, types.AssetToken); got != testSupply {
		t.Errorf("issuer = %d, want full supply", got)
	}
}

func TestOperations_RequestErrors(t *testing.T) {
	f := newFixture(t)
	w, secretKey := f.register(t, "1")
	other, otherKey := f.register(t, "2")
	f.grant(t, types.AssetFiat, w.PublicKey, 10)
	f.grant(t, types.AssetToken, w.PublicKey, 10)
	unregistered := &walletstore.Wallet{UserID: "3"}

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{"withdraw zero", func() error { _, err := f.eng.Withdraw(f.ctx, w, 0, secretKey); return err }, ErrInvalidAmount},
		{"withdraw overspend", func() error { _, err := f.eng.Withdraw(f.ctx, w, 11, secretKey); return err }, ErrInsufficientFunds},
		{"withdraw empty secret", func() error { _, err := f.eng.Withdraw(f.ctx, w, 1, ""); return err }, ErrMissingSecret},
		{"withdraw wrong secret", func() error { _, err := f.eng.Withdraw(f.ctx, w, 1, otherKey); return err }, ErrInvalidSecret},
		{"withdraw unregistered", func() error { _, err := f.eng.Withdraw(f.ctx, unregistered, 1, secretKey); return err }, ErrNotRegistered},
		{"transfer bad key", func() error { _, err := f.eng.TransferToken(f.ctx, w, "not-a-key", 1, secretKey); return err }, ErrInvalidPublicKey},
		{"transfer overspend", func() error { _, err := f.eng.TransferToken(f.ctx, w, other.PublicKey, 11, secretKey); return err }, ErrInsufficientFunds},
		{"sell overspend", func() error { _, err := f.eng.SellToken(f.ctx, w, 11, secretKey); return err }, ErrInsufficientFunds},
		{"sell zero", func() error { _, err := f.eng.SellToken(f.ctx, w, 0, secretKey); return err }, ErrInvalidAmount},
		{"deposit wrong secret", func() error { _, err := f.eng.Deposit(f.ctx, w, 1, otherKey); return err }, ErrInvalidSecret},
		{"deposit overspend", func() error { _, err := f.eng.Deposit(f.ctx, w, testSupply, secretKey); return err }, ErrInsufficientFunds},
		{"buy zero fiat", func() error { _, err := f.eng.BuyToken(f.ctx, w, 1, secretKey, 0); return err }, ErrInvalidAmount},
		{"buy overspend fiat", func() error { _, err := f.eng.BuyToken(f.ctx, w, 1, secretKey, 11); return err }, ErrInsufficientFunds},
		{"buy overspend tokens", func() error { _, err := f.eng.BuyToken(f.ctx, w, testSupply+1, secretKey, 1); return err }, ErrInsufficientFunds},
		{"sell for fiat overspend", func() error { _, err := f.eng.SellTokenForFiat(f.ctx, w, 11, secretKey, 1); return err }, ErrInsufficientFunds},
		{"sell for fiat reserve", func() error { _, err := f.eng.SellTokenForFiat(f.ctx, w, 1, secretKey, testSupply); return err }, ErrInsufficientFunds},
	}

	commits := f.hook.commits
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if f.hook.commits != commits {
		t.Errorf("%d transactions submitted by failing requests", f.hook.commits-commits)
	}
}

func TestBuyToken(t *testing.T) {
	f := newFixture(t)
	w, secretKey := f.register(t, "1")
	f.grant(t, types.AssetFiat, w.PublicKey, 1000)

	trade, err := f.eng.BuyToken(f.ctx, w, 50, secretKey, 100)
	if err != nil {
		t.Fatalf("BuyToken: %v", err)
	}
	if trade.TokenLeg == nil || trade.FiatLeg == nil {
		t.Fatalf("trade = %+v", trade)
	}
	if got := f.balance(t, w.PublicKey, types.AssetToken); got != 50 {
		t.Errorf("wallet CTOKEN = %d, want 50", got)
	}
	if got := f.balance(t, w.PublicKey, types.AssetFiat); got != 900 {
		t.Errorf("wallet MYR = %d, want 900", got)
	}
	if got := f.balance(t, f.issuer(t, types.AssetToken), types.AssetToken); got != testSupply-50 {
		t.Errorf("token issuer = %d", got)
	}

	fiatLeg, _ := f.local.GetTransaction(f.ctx, trade.FiatLeg.ID)
	if !strings.HasPrefix(fiatLeg.Metadata.Description, "Exchanged MYR 100 on ") {
		t.Errorf("fiat leg description = %q", fiatLeg.Metadata.Description)
	}
}

// failFiatFrom fails MYR transfers spending from owner.
func failFiatFrom(owner string, cause error) func(*tx.Transaction) error {
	return func(t *tx.Transaction) error {
		if t.Metadata.Asset == types.AssetFiat && t.Inputs[0].OwnersBefore[0] == owner {
			return cause
		}
		return nil
	}
}

func TestBuyToken_SecondLegFailsCompensated(t *testing.T) {
	f := newFixture(t)
	w, secretKey := f.register(t, "1")
	f.grant(t, types.AssetFiat, w.PublicKey, 1000)

	cause := errors.New("ledger timeout")
	f.hook.setFail(failFiatFrom(w.PublicKey, cause))

	_, err := f.eng.BuyToken(f.ctx, w, 50, secretKey, 100)
	var legErr *LegError
	if !errors.As(err, &legErr) {
		t.Fatalf("err = %v, want *LegError", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("LegError does not wrap the second-leg cause: %v", err)
	}

	// The first leg stays on the ledger.
	leg1, err := f.local.GetTransaction(f.ctx, legErr.Committed)
	if err != nil {
		t.Fatalf("committed leg not retrievable: %v", err)
	}
	if leg1.Metadata.Asset != types.AssetToken {
		t.Errorf("committed leg asset = %s", leg1.Metadata.Asset)
	}

	if !legErr.Compensated() || legErr.CompensationErr != nil {
		t.Fatalf("compensation = %s, err %v", legErr.Compensation, legErr.CompensationErr)
	}
	comp, err := f.local.GetTransaction(f.ctx, legErr.Compensation)
	if err != nil {
		t.Fatalf("compensation not on ledger: %v", err)
	}
	if comp.Metadata.Description != fmt.Sprintf("Compensation for %s", legErr.Committed) {
		t.Errorf("compensation description = %q", comp.Metadata.Description)
	}

	if got := f.balance(t, w.PublicKey, types.AssetToken); got != 0 {
		t.Errorf("wallet CTOKEN = %d, want 0 after compensation", got)
	}
	if got := f.balance(t, f.issuer(t, types.AssetToken), types.AssetToken); got != testSupply {
		t.Errorf("token issuer = %d, want full supply", got)
	}
	if got := f.balance(t, w.PublicKey, types.AssetFiat); got != 1000 {
		t.Errorf("wallet MYR = %d, want untouched 1000", got)
	}
}

func TestBuyToken_SecondLegFailsNoCompensation(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.CompensateFailedLegs = false })
	w, secretKey := f.register(t, "1")
	f.grant(t, types.AssetFiat, w.PublicKey, 1000)

	cause := errors.New("rejected")
	f.hook.setFail(failFiatFrom(w.PublicKey, cause))

	_, err := f.eng.BuyToken(f.ctx, w, 50, secretKey, 100)
	var legErr *LegError
	if !errors.As(err, &legErr) {
		t.Fatalf("err = %v, want *LegError", err)
	}
	if legErr.Compensated() || legErr.CompensationErr != nil {
		t.Errorf("compensation ran while disabled: %+v", legErr)
	}
	if _, err := f.local.GetTransaction(f.ctx, legErr.Committed); err != nil {
		t.Errorf("committed leg not retrievable: %v", err)
	}
	if got := f.balance(t, w.PublicKey, types.AssetToken); got != 50 {
		t.Errorf("wallet CTOKEN = %d, want 50", got)
	}
}

func TestBuyToken_CompensationFails(t *testing.T) {
	f := newFixture(t)
	w, secretKey := f.register(t, "1")
	f.grant(t, types.AssetFiat, w.PublicKey, 1000)

	cause := errors.New("down")
	f.hook.setFail(func(t *tx.Transaction) error {
		if t.Inputs[0].OwnersBefore[0] == w.PublicKey {
			return cause
		}
		return nil
	})

	_, err := f.eng.BuyToken(f.ctx, w, 50, secretKey, 100)
	var legErr *LegError
	if !errors.As(err, &legErr) {
		t.Fatalf("err = %v, want *LegError", err)
	}
	if legErr.Compensated() || !errors.Is(legErr.CompensationErr, cause) {
		t.Errorf("compensation = %s, err %v", legErr.Compensation, legErr.CompensationErr)
	}
	if !strings.Contains(err.Error(), "compensation failed") {
		t.Errorf("message = %q", err.Error())
	}
}

func TestSellTokenForFiat(t *testing.T) {
	f := newFixture(t)
	w, secretKey := f.register(t, "1")
	f.grant(t, types.AssetToken, w.PublicKey, 100)

	trade, err := f.eng.SellTokenForFiat(f.ctx, w, 30, secretKey, 60)
	if err != nil {
		t.Fatalf("SellTokenForFiat: %v", err)
	}
	if trade.TokenLeg.Asset != types.AssetToken || trade.FiatLeg.Asset != types.AssetFiat {
		t.Errorf("trade = %+v", trade)
	}
	if got := f.balance(t, w.PublicKey, types.AssetToken); got != 70 {
		t.Errorf("wallet CTOKEN = %d, want 70", got)
	}
	if got := f.balance(t, w.PublicKey, types.AssetFiat); got != 60 {
		t.Errorf("wallet MYR = %d, want 60", got)
	}
}

func TestSellTokenForFiat_SecondLegFailsCompensated(t *testing.T) {
	f := newFixture(t)
	w, secretKey := f.register(t, "1")
	f.grant(t, types.AssetToken, w.PublicKey, 100)

	cause := errors.New("fiat ledger down")
	f.hook.setFail(failFiatFrom(f.issuer(t, types.AssetFiat), cause))

	_, err := f.eng.SellTokenForFiat(f.ctx, w, 30, secretKey, 60)
	var legErr *LegError
	if !errors.As(err, &legErr) || !errors.Is(err, cause) {
		t.Fatalf("err = %v, want *LegError wrapping cause", err)
	}
	if legErr.Operation != "sell" || !legErr.Compensated() {
		t.Errorf("legErr = %+v", legErr)
	}
	if got := f.balance(t, w.PublicKey, types.AssetToken); got != 100 {
		t.Errorf("wallet CTOKEN = %d, want 100 after compensation", got)
	}
	if got := f.balance(t, w.PublicKey, types.AssetFiat); got != 0 {
		t.Errorf("wallet MYR = %d, want 0", got)
	}
}

func TestConflictRetry(t *testing.T) {
	spent := fmt.Errorf("commit: %w", ledger.ErrOutputSpent)

	for _, retries := range []int{0, 1} {
		t.Run(fmt.Sprintf("retries=%d", retries), func(t *testing.T) {
			f := newFixture(t, func(c *Config) { c.ConflictRetries = retries })
			w, secretKey := f.register(t, "1")
			f.grant(t, types.AssetFiat, w.PublicKey, 100)

			failed := false
			f.hook.setFail(func(*tx.Transaction) error {
				if !failed {
					failed = true
					return spent
				}
				return nil
			})

			_, err := f.eng.Withdraw(f.ctx, w, 10, secretKey)
			if retries == 0 {
				if !errors.Is(err, ledger.ErrOutputSpent) {
					t.Fatalf("err = %v, want ErrOutputSpent", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Withdraw with retry: %v", err)
			}
			if got := f.balance(t, w.PublicKey, types.AssetFiat); got != 90 {
				t.Errorf("wallet MYR = %d, want 90", got)
			}
		})
	}
}

func TestConcurrentSpendsOneWins(t *testing.T) {
	f := newFixture(t)
	w, secretKey := f.register(t, "1")
	f.grant(t, types.AssetFiat, w.PublicKey, 100)

	const n = 4
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(amount uint64) {
			_, err := f.eng.Withdraw(f.ctx, w, amount, secretKey)
			errs <- err
		}(uint64(10 + i))
	}

	ok := 0
	for i := 0; i < n; i++ {
		err := <-errs
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ledger.ErrOutputSpent):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok < 1 {
		t.Fatal("no withdrawal succeeded")
	}
	circ, _ := f.local.Circulating(types.AssetFiat)
	if circ != testSupply {
		t.Errorf("MYR circulating = %d, want %d", circ, testSupply)
	}
}

func TestWithdraw_ManyOutputs(t *testing.T) {
	if testing.Short() {
		t.Skip("commits over a thousand grants")
	}
	f := newFixture(t)
	w, secretKey := f.register(t, "1")
	n := uint64(tx.MaxInputs + 2)
	for i := uint64(0); i < n; i++ {
		f.grant(t, types.AssetFiat, w.PublicKey, 1)
	}

	res, err := f.eng.Withdraw(f.ctx, w, 1, secretKey)
	if err != nil {
		t.Fatalf("Withdraw(1): %v", err)
	}
	txn, err := f.local.GetTransaction(f.ctx, res.ID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if len(txn.Inputs) != 1 || len(txn.Outputs) != 1 {
		t.Errorf("withdraw spent %d inputs into %d outputs, want 1 into 1", len(txn.Inputs), len(txn.Outputs))
	}

	// The rest needs more than tx.MaxInputs outputs.
	rest := n - 1
	res, err = f.eng.Withdraw(f.ctx, w, rest, secretKey)
	if err != nil {
		t.Fatalf("Withdraw(%d): %v", rest, err)
	}
	txn, err = f.local.GetTransaction(f.ctx, res.ID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if len(txn.Inputs) > tx.MaxInputs {
		t.Errorf("withdraw spent %d inputs", len(txn.Inputs))
	}
	if got := f.balance(t, w.PublicKey, types.AssetFiat); got != 0 {
		t.Errorf("wallet MYR = %d, want 0", got)
	}
	if got := f.balance(t, f.issuer(t, types.AssetFiat), types.AssetFiat); got != testSupply {
		t.Errorf("issuer MYR = %d, want %d", got, testSupply)
	}
	circ, _ := f.local.Circulating(types.AssetFiat)
	if circ != testSupply {
		t.Errorf("MYR circulating = %d, want %d", circ, testSupply)
	}
}

func TestWithdraw_ReadsLedgerOnce(t *testing.T) {
	f := newFixture(t)
	w, secretKey := f.register(t, "1")
	f.grant(t, types.AssetFiat, w.PublicKey, 60)
	f.grant(t, types.AssetFiat, w.PublicKey, 40)

	before := f.hook.fetchCount()
	if _, err := f.eng.Withdraw(f.ctx, w, 50, secretKey); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if got := f.hook.fetchCount() - before; got != 2 {
		t.Errorf("transaction fetches = %d, want 2", got)
	}
	if got := f.balance(t, w.PublicKey, types.AssetFiat); got != 50 {
		t.Errorf("wallet MYR = %d, want 50", got)
	}
}
