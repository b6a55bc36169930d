package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	klog "github.com/Klingon-tech/cryptoken/internal/log"
	"github.com/Klingon-tech/cryptoken/internal/storage"
	"github.com/Klingon-tech/cryptoken/internal/utxo"
	"github.com/Klingon-tech/cryptoken/pkg/crypto"
	"github.com/Klingon-tech/cryptoken/pkg/tx"
	"github.com/Klingon-tech/cryptoken/pkg/types"
)

// Local is a single-process ledger over a storage.DB. Commits are
// serialized; each one is validated against the current output set and
// applied in a single batch.
type Local struct {
	mu      sync.Mutex // Protects validate-then-apply in CommitTransaction.
	db      storage.DB
	outputs *utxo.Store
	txs     *TxStore
}

// NewLocal creates a reference ledger backed by db.
func NewLocal(db storage.DB) *Local {
	return &Local{
		db:      db,
		outputs: utxo.NewStore(db),
		txs:     NewTxStore(db),
	}
}

// QueryOutputs implements Ledger.
func (l *Local) QueryOutputs(ctx context.Context, publicKey string, spent *bool) ([]OutputRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if publicKey == "" {
		return nil, fmt.Errorf("%w: empty public key", ErrInvalidRequest)
	}
	recs, err := l.outputs.GetByOwner(publicKey, spent)
	if err != nil {
		return nil, err
	}
	refs := make([]OutputRef, len(recs))
	for i, r := range recs {
		refs[i] = r.Outpoint
	}
	return refs, nil
}

// GetTransaction implements Ledger.
func (l *Local) GetTransaction(ctx context.Context, id types.Hash) (*tx.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.txs.Get(id)
}

// CommitTransaction implements Ledger. A transaction is accepted when it is
// well formed, correctly signed, spends only existing unspent outputs of its
// own asset owned by the signer, and balances exactly. A CREATE is accepted
// once per asset and must assign the whole supply to its issuer.
func (l *Local) CommitTransaction(ctx context.Context, t *tx.Transaction) (*CommitResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%w: nil transaction", ErrInvalidRequest)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.validate(t); err != nil {
		klog.Ledger.Debug().Err(err).Str("tx_id", t.ID.String()).Msg("Rejected transaction")
		return nil, err
	}

	if err := l.apply(t); err != nil {
		return nil, fmt.Errorf("apply %s: %w", t.ID, err)
	}

	klog.Ledger.Info().
		Str("tx_id", t.ID.String()).
		Str("operation", string(t.Operation)).
		Str("asset", string(t.Metadata.Asset)).
		Int("inputs", len(t.Inputs)).
		Int("outputs", len(t.Outputs)).
		Msg("Transaction committed")

	return &CommitResult{ID: t.ID, Operation: t.Operation, Asset: t.Metadata.Asset}, nil
}

func (l *Local) validate(t *tx.Transaction) error {
	if err := t.ValidateWithOutputs(l.outputs); err != nil {
		if errors.Is(err, tx.ErrInputSpent) {
			return fmt.Errorf("%w: %w", ErrOutputSpent, err)
		}
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}

	// Owner keys are used verbatim as index keys.
	for i, out := range t.Outputs {
		if _, err := crypto.ParsePublicKey(out.PublicKeys[0]); err != nil {
			return fmt.Errorf("%w: output %d: %w", ErrRejected, i, err)
		}
	}

	if t.Operation == tx.OpCreate {
		_, err := l.txs.Genesis(t.Metadata.Asset)
		switch {
		case err == nil:
			return fmt.Errorf("%w: %w: %s", ErrRejected, ErrAlreadyIssued, t.Metadata.Asset)
		case !errors.Is(err, ErrNotFound):
			return err
		}
		if len(t.Outputs) != 1 || !t.Outputs[0].OwnedBy(t.Inputs[0].OwnersBefore[0]) {
			return fmt.Errorf("%w: genesis must assign the supply to its issuer", ErrRejected)
		}
	}
	return nil
}

func (l *Local) apply(t *tx.Transaction) error {
	b := storage.NewBatch(l.db)

	if t.Operation == tx.OpTransfer {
		id := t.ID
		for _, in := range t.Inputs {
			rec, err := l.outputs.Get(*in.Fulfills)
			if err != nil {
				return err
			}
			rec.Spent = true
			rec.SpentBy = &id
			if err := l.outputs.PutBatch(b, rec); err != nil {
				return err
			}
		}
	}

	for _, rec := range utxo.RecordsFor(t) {
		if err := l.outputs.PutBatch(b, rec); err != nil {
			return err
		}
	}
	if err := l.txs.PutBatch(b, t); err != nil {
		return err
	}
	return b.Commit()
}

// Genesis returns the id of the CREATE transaction for asset, or ErrNotFound.
func (l *Local) Genesis(asset types.Asset) (types.Hash, error) {
	return l.txs.Genesis(asset)
}

// Circulating returns the total unspent amount of asset.
func (l *Local) Circulating(asset types.Asset) (uint64, error) {
	var total uint64
	err := l.outputs.ForEach(func(r *utxo.Record) error {
		if r.Asset != asset || r.Spent {
			return nil
		}
		if total > math.MaxUint64-r.Amount {
			return fmt.Errorf("%s circulating: %w", asset, ErrAmountOverflow)
		}
		total += r.Amount
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// Commitment returns the merkle root over the output set.
func (l *Local) Commitment() (types.Hash, error) {
	return utxo.Commitment(l.outputs)
}

// TxCount returns the number of committed transactions.
func (l *Local) TxCount() (int, error) {
	return l.txs.Count()
}
