package utxo

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/Klingon-tech/cryptoken/pkg/crypto"
	"github.com/Klingon-tech/cryptoken/pkg/types"
)

// Commitment computes a merkle root over all records in the store,
// including spent status. Each record is hashed deterministically, the
// hashes are sorted, and a merkle tree is built from them. Returns a zero
// hash for an empty set.
func Commitment(store *Store) (types.Hash, error) {
	var hashes []types.Hash

	err := store.ForEach(func(r *Record) error {
		hashes = append(hashes, hashRecord(r))
		return nil
	})
	if err != nil {
		return types.Hash{}, fmt.Errorf("output commitment: %w", err)
	}

	if len(hashes) == 0 {
		return types.Hash{}, nil
	}

	sort.Slice(hashes, func(i, j int) bool {
		return hashLess(hashes[i], hashes[j])
	})

	return crypto.MerkleRoot(hashes), nil
}

// hashRecord produces a deterministic BLAKE3 hash of a record.
// Format: txid(32) | index(4) | amount(8) | asset | owners | spent(1)
func hashRecord(r *Record) types.Hash {
	var buf []byte
	buf = append(buf, r.Outpoint.TxID[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, r.Outpoint.Index)
	buf = binary.LittleEndian.AppendUint64(buf, r.Amount)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(r.Asset)))
	buf = append(buf, r.Asset...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(r.PublicKeys)))
	for _, pk := range r.PublicKeys {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(pk)))
		buf = append(buf, pk...)
	}
	if r.Spent {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return crypto.Hash(buf)
}

func hashLess(a, b types.Hash) bool {
	for i := 0; i < types.HashSize; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
