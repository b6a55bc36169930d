package utxo

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/cryptoken/internal/storage"
	"github.com/Klingon-tech/cryptoken/pkg/tx"
	"github.com/Klingon-tech/cryptoken/pkg/types"
)

// ErrAlreadySpent is returned by MarkSpent for an output that is already spent.
var ErrAlreadySpent = errors.New("output already spent")

// Key prefixes for the output store.
var (
	prefixOutput = []byte("u/") // u/<txid><index> -> Record JSON
	prefixOwner  = []byte("o/") // o/<owner>/<txid><index> -> empty (index)
)

// writer is satisfied by both storage.DB and storage.Batch.
type writer interface {
	Put(key, value []byte) error
}

// Store implements Set backed by a storage.DB.
type Store struct {
	db storage.DB
}

// NewStore creates a new output store backed by the given database.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// outputKey builds a storage key for an outpoint: "u/" + txid(32) + index(4).
func outputKey(op types.Outpoint) []byte {
	key := make([]byte, len(prefixOutput)+types.HashSize+4)
	copy(key, prefixOutput)
	copy(key[len(prefixOutput):], op.TxID[:])
	binary.BigEndian.PutUint32(key[len(prefixOutput)+types.HashSize:], op.Index)
	return key
}

// ownerPrefix builds the owner index prefix: "o/" + owner + "/".
// Base58 keys never contain '/'.
func ownerPrefix(owner string) []byte {
	key := make([]byte, 0, len(prefixOwner)+len(owner)+1)
	key = append(key, prefixOwner...)
	key = append(key, owner...)
	return append(key, '/')
}

// ownerKey builds an owner index key: ownerPrefix + txid(32) + index(4).
func ownerKey(owner string, op types.Outpoint) []byte {
	key := ownerPrefix(owner)
	key = append(key, op.TxID[:]...)
	return binary.BigEndian.AppendUint32(key, op.Index)
}

// Get retrieves a record by its outpoint.
func (s *Store) Get(outpoint types.Outpoint) (*Record, error) {
	data, err := s.db.Get(outputKey(outpoint))
	if err != nil {
		return nil, fmt.Errorf("output get %s: %w", outpoint, err)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("output unmarshal: %w", err)
	}
	return &r, nil
}

// Put stores a record and updates the owner index.
func (s *Store) Put(r *Record) error {
	return s.put(s.db, r)
}

// PutBatch stages a record and its owner index entries in b.
func (s *Store) PutBatch(b storage.Batch, r *Record) error {
	return s.put(b, r)
}

func (s *Store) put(w writer, r *Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("output marshal: %w", err)
	}
	if err := w.Put(outputKey(r.Outpoint), data); err != nil {
		return fmt.Errorf("output put: %w", err)
	}
	for _, owner := range r.PublicKeys {
		if err := w.Put(ownerKey(owner, r.Outpoint), []byte{}); err != nil {
			return fmt.Errorf("owner index put: %w", err)
		}
	}
	return nil
}

// MarkSpent flags an output as spent by transaction by.
func (s *Store) MarkSpent(outpoint types.Outpoint, by types.Hash) error {
	r, err := s.Get(outpoint)
	if err != nil {
		return err
	}
	if r.Spent {
		return fmt.Errorf("%s: %w", outpoint, ErrAlreadySpent)
	}
	r.Spent = true
	r.SpentBy = &by
	return s.Put(r)
}

// Has checks if a record exists for the given outpoint.
func (s *Store) Has(outpoint types.Outpoint) (bool, error) {
	return s.db.Has(outputKey(outpoint))
}

// ForEach iterates over all records in the store.
func (s *Store) ForEach(fn func(*Record) error) error {
	return s.db.ForEach(prefixOutput, func(key, value []byte) error {
		var r Record
		if err := json.Unmarshal(value, &r); err != nil {
			return fmt.Errorf("output unmarshal: %w", err)
		}
		return fn(&r)
	})
}

// GetByOwner returns the records listing owner among their public keys,
// ordered by outpoint. A nil spent returns all records; otherwise only
// those whose spent status equals *spent.
func (s *Store) GetByOwner(owner string, spent *bool) ([]*Record, error) {
	prefix := ownerPrefix(owner)

	var recs []*Record
	err := s.db.ForEach(prefix, func(key, _ []byte) error {
		// Key layout: ownerPrefix + txid(32) + index(4).
		off := len(prefix)
		if len(key) != off+types.HashSize+4 {
			return nil // Malformed key, skip.
		}
		var op types.Outpoint
		copy(op.TxID[:], key[off:off+types.HashSize])
		op.Index = binary.BigEndian.Uint32(key[off+types.HashSize:])

		r, err := s.Get(op)
		if err != nil {
			return err
		}
		if spent != nil && r.Spent != *spent {
			return nil
		}
		recs = append(recs, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan owner index: %w", err)
	}
	return recs, nil
}

// GetOutput implements tx.OutputProvider.
func (s *Store) GetOutput(outpoint types.Outpoint) (*tx.SpendableOutput, error) {
	r, err := s.Get(outpoint)
	if err != nil {
		return nil, err
	}
	return &tx.SpendableOutput{Output: r.Output(), Asset: r.Asset, Spent: r.Spent}, nil
}

// HasOutput implements tx.OutputProvider.
func (s *Store) HasOutput(outpoint types.Outpoint) bool {
	ok, err := s.Has(outpoint)
	return err == nil && ok
}
