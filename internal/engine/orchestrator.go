package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Klingon-tech/cryptoken/internal/ledger"
	"github.com/Klingon-tech/cryptoken/internal/walletstore"
	"github.com/Klingon-tech/cryptoken/pkg/crypto"
	"github.com/Klingon-tech/cryptoken/pkg/tx"
	"github.com/Klingon-tech/cryptoken/pkg/types"
)

// compensationTimeout bounds a compensating transfer, which runs even when
// the operation's context is already done.
const compensationTimeout = 30 * time.Second

// Trade is the result of a two-leg buy or sell.
type Trade struct {
	TokenLeg *ledger.CommitResult `json:"token_leg"`
	FiatLeg  *ledger.CommitResult `json:"fiat_leg"`
}

// party is the paying side of a transfer.
type party struct {
	pub string
	key crypto.Signer
}

// transferPlan is one orchestrated transfer. meta receives the payer's
// balance left after the payment.
type transferPlan struct {
	op     string
	asset  types.Asset
	from   party
	to     string
	amount uint64
	meta   func(remaining uint64) tx.Metadata
}

// transfer runs plan, rebuilding it from fresh ledger reads up to
// ConflictRetries times when an input was spent concurrently.
func (e *Engine) transfer(ctx context.Context, plan transferPlan) (*ledger.CommitResult, error) {
	if plan.amount == 0 {
		return nil, ErrInvalidAmount
	}
	for attempt := 0; ; attempt++ {
		res, err := e.transferOnce(ctx, plan)
		if err == nil || !errors.Is(err, ledger.ErrOutputSpent) || attempt >= e.retries {
			return res, err
		}
		e.logger.Warn().Err(err).
			Str("op", plan.op).
			Int("attempt", attempt+1).
			Msg("Input spent concurrently, rebuilding transfer")
	}
}

func (e *Engine) transferOnce(ctx context.Context, plan transferPlan) (*ledger.CommitResult, error) {
	for {
		outs, err := e.FindUnspent(ctx, plan.from.pub, plan.asset)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", plan.op, err)
		}
		owned := ownedBy(outs, plan.from.pub)
		balance, err := sumOutputs(owned)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", plan.op, err)
		}
		if plan.amount > balance {
			return nil, fmt.Errorf("%s: %w: %s balance %d, need %d", plan.op, ErrInsufficientFunds, plan.asset, balance, plan.amount)
		}

		sel, err := selectInputs(owned, plan.amount)
		if errors.Is(err, ErrTooManyInputs) {
			// Each consolidation folds tx.MaxInputs outputs into one.
			if err := e.consolidate(ctx, plan, sel); err != nil {
				return nil, fmt.Errorf("%s: %w", plan.op, err)
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", plan.op, err)
		}

		res, err := e.BuildTransfer(ctx, TransferRequest{
			Asset:     plan.asset,
			Inputs:    sel.inputs,
			From:      plan.from.pub,
			FromKey:   plan.from.key,
			To:        plan.to,
			Payment:   plan.amount,
			Remaining: sel.change(plan.amount),
			Metadata:  plan.meta(balance - plan.amount),
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", plan.op, err)
		}
		return res, nil
	}
}

// consolidate merges sel into a single output owned by the payer.
func (e *Engine) consolidate(ctx context.Context, plan transferPlan, sel *inputSelection) error {
	ts := e.timestamp()
	res, err := e.BuildTransfer(ctx, TransferRequest{
		Asset:   plan.asset,
		Inputs:  sel.inputs,
		From:    plan.from.pub,
		FromKey: plan.from.key,
		To:      plan.from.pub,
		Payment: sel.total,
		Metadata: tx.Metadata{
			Description: fmt.Sprintf("Consolidated %d outputs at %s", len(sel.inputs), ts),
			Datetime:    ts,
		},
	})
	if err != nil {
		return fmt.Errorf("consolidate: %w", err)
	}
	e.logger.Info().
		Str("tx_id", res.ID.String()).
		Str("owner", plan.from.pub).
		Int("inputs", len(sel.inputs)).
		Msg("Outputs consolidated")
	return nil
}

// issuerParty returns the issuer of asset as a paying party. The caller
// must Zero the key.
func (e *Engine) issuerParty(asset types.Asset) (party, *crypto.PrivateKey, error) {
	kp, err := e.auth.Issuer(asset)
	if err != nil {
		return party{}, nil, err
	}
	key, err := kp.Signer()
	if err != nil {
		return party{}, nil, fmt.Errorf("%s issuer key: %w", asset, err)
	}
	return party{pub: kp.PublicKey, key: key}, key, nil
}

// Withdraw returns amount MYR from the wallet to the fiat issuer.
func (e *Engine) Withdraw(ctx context.Context, w *walletstore.Wallet, amount uint64, secretKey string) (*ledger.CommitResult, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	key, err := e.authorize(ctx, w, secretKey)
	if err != nil {
		return nil, err
	}
	defer key.Zero()

	ts := e.timestamp()
	return e.transfer(ctx, transferPlan{
		op:     "withdraw",
		asset:  types.AssetFiat,
		from:   party{pub: w.PublicKey, key: key},
		to:     e.auth.Fiat.PublicKey,
		amount: amount,
		meta: func(uint64) tx.Metadata {
			return tx.Metadata{
				Description: fmt.Sprintf("Withdrew MYR %d at %s", amount, ts),
				Datetime:    ts,
			}
		},
	})
}

// TransferToken sends amount CTOKEN from the wallet to toKey.
func (e *Engine) TransferToken(ctx context.Context, w *walletstore.Wallet, toKey string, amount uint64, secretKey string) (*ledger.CommitResult, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	key, err := e.authorize(ctx, w, secretKey)
	if err != nil {
		return nil, err
	}
	defer key.Zero()

	if _, err := crypto.ParsePublicKey(toKey); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return e.transfer(ctx, e.tokenTransfer("transfer", party{pub: w.PublicKey, key: key}, toKey, amount))
}

// SellToken sends amount CTOKEN from the wallet back to the token issuer.
func (e *Engine) SellToken(ctx context.Context, w *walletstore.Wallet, amount uint64, secretKey string) (*ledger.CommitResult, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	key, err := e.authorize(ctx, w, secretKey)
	if err != nil {
		return nil, err
	}
	defer key.Zero()

	return e.transfer(ctx, e.tokenTransfer("sell", party{pub: w.PublicKey, key: key}, e.auth.Token.PublicKey, amount))
}

// tokenTransfer describes a CTOKEN payment from one party to another.
func (e *Engine) tokenTransfer(op string, from party, to string, amount uint64) transferPlan {
	ts := e.timestamp()
	return transferPlan{
		op:     op,
		asset:  types.AssetToken,
		from:   from,
		to:     to,
		amount: amount,
		meta: func(remaining uint64) tx.Metadata {
			return tx.Metadata{
				TransferTo: to,
				From:       from.pub,
				Remaining:  &remaining,
				Datetime:   ts,
			}
		},
	}
}

// fiatTransfer describes a MYR payment with a free-text description.
func (e *Engine) fiatTransfer(op string, from party, to string, amount uint64, description string) transferPlan {
	ts := e.timestamp()
	return transferPlan{
		op:     op,
		asset:  types.AssetFiat,
		from:   from,
		to:     to,
		amount: amount,
		meta: func(uint64) tx.Metadata {
			return tx.Metadata{Description: description, Datetime: ts}
		},
	}
}

// Deposit credits amount MYR to the wallet from the fiat issuer. The wallet
// owner's secret authorizes the request; the issuer key signs.
func (e *Engine) Deposit(ctx context.Context, w *walletstore.Wallet, amount uint64, secretKey string) (*ledger.CommitResult, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	key, err := e.authorize(ctx, w, secretKey)
	if err != nil {
		return nil, err
	}
	key.Zero()

	issuer, issuerKey, err := e.issuerParty(types.AssetFiat)
	if err != nil {
		return nil, err
	}
	defer issuerKey.Zero()

	return e.transfer(ctx, e.fiatTransfer("deposit", issuer, w.PublicKey, amount,
		fmt.Sprintf("Deposit MYR %d on %s", amount, e.timestamp())))
}

// BuyToken moves amount CTOKEN from the token issuer to the wallet, then
// fiatAmount MYR from the wallet to the fiat issuer. If the second leg fails
// the result is a *LegError; with compensation on, the tokens are first
// returned to the token issuer.
func (e *Engine) BuyToken(ctx context.Context, w *walletstore.Wallet, amount uint64, secretKey string, fiatAmount uint64) (*Trade, error) {
	if amount == 0 || fiatAmount == 0 {
		return nil, ErrInvalidAmount
	}
	key, err := e.authorize(ctx, w, secretKey)
	if err != nil {
		return nil, err
	}
	defer key.Zero()

	fiat, err := e.BalanceOf(ctx, w.PublicKey, types.AssetFiat)
	if err != nil {
		return nil, fmt.Errorf("buy: %w", err)
	}
	if fiatAmount > fiat {
		return nil, fmt.Errorf("buy: %w: MYR balance %d, need %d", ErrInsufficientFunds, fiat, fiatAmount)
	}

	issuer, issuerKey, err := e.issuerParty(types.AssetToken)
	if err != nil {
		return nil, err
	}
	defer issuerKey.Zero()
	buyer := party{pub: w.PublicKey, key: key}

	tokenLeg, err := e.transfer(ctx, e.tokenTransfer("buy", issuer, w.PublicKey, amount))
	if err != nil {
		return nil, err
	}

	fiatLeg, err := e.transfer(ctx, e.fiatTransfer("buy", buyer, e.auth.Fiat.PublicKey, fiatAmount,
		fmt.Sprintf("Exchanged MYR %d on %s", fiatAmount, e.timestamp())))
	if err != nil {
		return nil, e.failLeg(ctx, "buy", tokenLeg.ID, err,
			e.tokenTransfer("buy compensation", buyer, issuer.pub, amount))
	}

	return &Trade{TokenLeg: tokenLeg, FiatLeg: fiatLeg}, nil
}

// SellTokenForFiat moves amount CTOKEN from the wallet to the token issuer,
// then fiatAmount MYR from the fiat issuer to the wallet. Failure semantics
// match BuyToken; compensation returns the tokens to the wallet.
func (e *Engine) SellTokenForFiat(ctx context.Context, w *walletstore.Wallet, amount uint64, secretKey string, fiatAmount uint64) (*Trade, error) {
	if amount == 0 || fiatAmount == 0 {
		return nil, ErrInvalidAmount
	}
	key, err := e.authorize(ctx, w, secretKey)
	if err != nil {
		return nil, err
	}
	defer key.Zero()

	fiatIssuer, fiatKey, err := e.issuerParty(types.AssetFiat)
	if err != nil {
		return nil, err
	}
	defer fiatKey.Zero()

	reserve, err := e.BalanceOf(ctx, fiatIssuer.pub, types.AssetFiat)
	if err != nil {
		return nil, fmt.Errorf("sell: %w", err)
	}
	if fiatAmount > reserve {
		return nil, fmt.Errorf("sell: %w: fiat issuer balance %d, need %d", ErrInsufficientFunds, reserve, fiatAmount)
	}

	tokenIssuer, tokenKey, err := e.issuerParty(types.AssetToken)
	if err != nil {
		return nil, err
	}
	defer tokenKey.Zero()
	seller := party{pub: w.PublicKey, key: key}

	tokenLeg, err := e.transfer(ctx, e.tokenTransfer("sell", seller, tokenIssuer.pub, amount))
	if err != nil {
		return nil, err
	}

	fiatLeg, err := e.transfer(ctx, e.fiatTransfer("sell", fiatIssuer, w.PublicKey, fiatAmount,
		fmt.Sprintf("Deposit MYR %d on %s", fiatAmount, e.timestamp())))
	if err != nil {
		return nil, e.failLeg(ctx, "sell", tokenLeg.ID, err,
			e.tokenTransfer("sell compensation", tokenIssuer, w.PublicKey, amount))
	}

	return &Trade{TokenLeg: tokenLeg, FiatLeg: fiatLeg}, nil
}

// failLeg builds the LegError for a failed second leg, running the
// compensating transfer first when enabled.
func (e *Engine) failLeg(ctx context.Context, op string, committed types.Hash, cause error, reverse transferPlan) *LegError {
	legErr := &LegError{Operation: op, Committed: committed, Err: cause}

	if e.compensate {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
		defer cancel()

		meta := reverse.meta
		reverse.meta = func(remaining uint64) tx.Metadata {
			md := meta(remaining)
			md.Description = fmt.Sprintf("Compensation for %s", committed)
			return md
		}
		res, err := e.transfer(cctx, reverse)
		if err != nil {
			legErr.CompensationErr = err
		} else {
			legErr.Compensation = res.ID
		}
	}

	e.logger.Error().Err(cause).
		Str("op", op).
		Str("committed", committed.String()).
		Str("compensation", legErr.Compensation.String()).
		AnErr("compensation_err", legErr.CompensationErr).
		Msg("Second leg failed")
	return legErr
}
