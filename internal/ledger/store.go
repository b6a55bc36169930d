package ledger

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/cryptoken/internal/storage"
	"github.com/Klingon-tech/cryptoken/pkg/tx"
	"github.com/Klingon-tech/cryptoken/pkg/types"
)

// Key prefixes for the transaction store.
var (
	prefixTx      = []byte("t/") // t/<txid(32)> -> transaction JSON
	prefixGenesis = []byte("g/") // g/<asset> -> txid(32)
)

// TxStore persists committed transactions to a storage.DB.
type TxStore struct {
	db storage.DB
}

// NewTxStore creates a transaction store backed by the given database.
func NewTxStore(db storage.DB) *TxStore {
	return &TxStore{db: db}
}

func txKey(id types.Hash) []byte {
	key := make([]byte, len(prefixTx)+types.HashSize)
	copy(key, prefixTx)
	copy(key[len(prefixTx):], id[:])
	return key
}

func genesisKey(asset types.Asset) []byte {
	return append(append([]byte{}, prefixGenesis...), asset...)
}

// Get retrieves a transaction by id.
func (s *TxStore) Get(id types.Hash) (*tx.Transaction, error) {
	data, err := s.db.Get(txKey(id))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("transaction get: %w", err)
	}
	var t tx.Transaction
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("transaction unmarshal: %w", err)
	}
	return &t, nil
}

// Has reports whether a transaction is stored.
func (s *TxStore) Has(id types.Hash) (bool, error) {
	return s.db.Has(txKey(id))
}

// PutBatch stages a transaction in b. A CREATE also records the asset's
// genesis id.
func (s *TxStore) PutBatch(b storage.Batch, t *tx.Transaction) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("transaction marshal: %w", err)
	}
	if err := b.Put(txKey(t.ID), data); err != nil {
		return fmt.Errorf("transaction put: %w", err)
	}
	if t.Operation == tx.OpCreate {
		if err := b.Put(genesisKey(t.Metadata.Asset), t.ID[:]); err != nil {
			return fmt.Errorf("genesis put: %w", err)
		}
	}
	return nil
}

// Genesis returns the id of the CREATE transaction for asset.
// Returns ErrNotFound if the asset has not been issued.
func (s *TxStore) Genesis(asset types.Asset) (types.Hash, error) {
	data, err := s.db.Get(genesisKey(asset))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return types.Hash{}, fmt.Errorf("genesis %s: %w", asset, ErrNotFound)
		}
		return types.Hash{}, fmt.Errorf("genesis get: %w", err)
	}
	if len(data) != types.HashSize {
		return types.Hash{}, fmt.Errorf("genesis %s: corrupt id (%d bytes)", asset, len(data))
	}
	var id types.Hash
	copy(id[:], data)
	return id, nil
}

// Count returns the number of stored transactions.
func (s *TxStore) Count() (int, error) {
	n := 0
	err := s.db.ForEach(prefixTx, func(_, _ []byte) error {
		n++
		return nil
	})
	return n, err
}
