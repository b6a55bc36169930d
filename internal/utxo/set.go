// Package utxo manages the ledger's output set: every output ever created,
// with its spent status and an owner index.
package utxo

import (
	"github.com/Klingon-tech/cryptoken/pkg/tx"
	"github.com/Klingon-tech/cryptoken/pkg/types"
)

// Record is a stored transaction output.
type Record struct {
	Outpoint   types.Outpoint `json:"outpoint"`
	PublicKeys []string       `json:"public_keys"`
	Amount     uint64         `json:"amount"`
	Asset      types.Asset    `json:"asset"`
	Spent      bool           `json:"spent"`
	SpentBy    *types.Hash    `json:"spent_by,omitempty"`
}

// Output returns the record as a transaction output.
func (r *Record) Output() tx.Output {
	return tx.Output{PublicKeys: r.PublicKeys, Amount: r.Amount}
}

// RecordsFor returns the records created by a transaction's outputs.
func RecordsFor(t *tx.Transaction) []*Record {
	recs := make([]*Record, len(t.Outputs))
	for i, out := range t.Outputs {
		recs[i] = &Record{
			Outpoint:   t.Outpoint(uint32(i)),
			PublicKeys: append([]string(nil), out.PublicKeys...),
			Amount:     out.Amount,
			Asset:      t.Metadata.Asset,
		}
	}
	return recs
}

// Set is the interface for output storage.
type Set interface {
	Get(outpoint types.Outpoint) (*Record, error)
	Put(r *Record) error
	Has(outpoint types.Outpoint) (bool, error)
	MarkSpent(outpoint types.Outpoint, by types.Hash) error
}
