// Package tx defines the ledger transaction model, its canonical signing
// encoding, and validation.
package tx

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/Klingon-tech/cryptoken/pkg/crypto"
	"github.com/Klingon-tech/cryptoken/pkg/types"
)

// Operation distinguishes genesis issuance from transfers.
type Operation string

const (
	// OpCreate issues an asset's whole supply. It has no spent inputs.
	OpCreate Operation = "CREATE"
	// OpTransfer spends existing outputs.
	OpTransfer Operation = "TRANSFER"
)

// Version is the current transaction format version.
const Version = 1

// Transaction is an immutable ledger entry.
type Transaction struct {
	ID        types.Hash `json:"id"`
	Version   uint32     `json:"version"`
	Operation Operation  `json:"operation"`
	Asset     *AssetData `json:"asset,omitempty"`
	Inputs    []Input    `json:"inputs"`
	Outputs   []Output   `json:"outputs"`
	Metadata  Metadata   `json:"metadata"`
}

// AssetData describes the asset minted by a CREATE transaction.
type AssetData struct {
	Name   string `json:"name"`
	Supply uint64 `json:"-"`
}

type assetDataJSON struct {
	Name   string `json:"name"`
	Supply string `json:"supply"`
}

// MarshalJSON encodes the supply as a decimal string.
func (a AssetData) MarshalJSON() ([]byte, error) {
	return json.Marshal(assetDataJSON{Name: a.Name, Supply: strconv.FormatUint(a.Supply, 10)})
}

// UnmarshalJSON decodes a decimal-string supply.
func (a *AssetData) UnmarshalJSON(data []byte) error {
	var j assetDataJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	supply, err := parseAmount(j.Supply)
	if err != nil {
		return fmt.Errorf("supply: %w", err)
	}
	a.Name = j.Name
	a.Supply = supply
	return nil
}

// Input spends one output. Fulfills is nil for the single input of a CREATE.
type Input struct {
	Fulfills     *types.Outpoint `json:"fulfills"`
	OwnersBefore []string        `json:"owners_before"`
	Signature    []byte          `json:"-"`
}

// inputJSON is the JSON representation of Input with a hex-encoded signature.
type inputJSON struct {
	Fulfills     *types.Outpoint `json:"fulfills"`
	OwnersBefore []string        `json:"owners_before"`
	Signature    *string         `json:"fulfillment"`
}

// MarshalJSON encodes the input with a hex-encoded signature.
func (in Input) MarshalJSON() ([]byte, error) {
	j := inputJSON{Fulfills: in.Fulfills, OwnersBefore: in.OwnersBefore}
	if in.Signature != nil {
		s := hex.EncodeToString(in.Signature)
		j.Signature = &s
	}
	return json.Marshal(j)
}

// UnmarshalJSON decodes an input with a hex-encoded signature.
func (in *Input) UnmarshalJSON(data []byte) error {
	var j inputJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	in.Fulfills = j.Fulfills
	in.OwnersBefore = j.OwnersBefore
	in.Signature = nil
	if j.Signature != nil {
		b, err := hex.DecodeString(*j.Signature)
		if err != nil {
			return err
		}
		in.Signature = b
	}
	return nil
}

// Output assigns an amount to its owners.
type Output struct {
	PublicKeys []string `json:"public_keys"`
	Amount     uint64   `json:"-"`
}

type outputJSON struct {
	PublicKeys []string `json:"public_keys"`
	Amount     string   `json:"amount"`
}

// MarshalJSON encodes the amount as a decimal string.
func (o Output) MarshalJSON() ([]byte, error) {
	return json.Marshal(outputJSON{PublicKeys: o.PublicKeys, Amount: strconv.FormatUint(o.Amount, 10)})
}

// UnmarshalJSON decodes a decimal-string amount.
func (o *Output) UnmarshalJSON(data []byte) error {
	var j outputJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	amount, err := parseAmount(j.Amount)
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	o.PublicKeys = j.PublicKeys
	o.Amount = amount
	return nil
}

// OwnedBy reports whether the output has exactly one owner equal to pubKey.
func (o Output) OwnedBy(pubKey string) bool {
	return len(o.PublicKeys) == 1 && o.PublicKeys[0] == pubKey
}

// Metadata carries the asset tag and descriptive fields.
type Metadata struct {
	Asset       types.Asset `json:"asset"`
	Description string      `json:"description,omitempty"`
	TransferTo  string      `json:"transfer_to,omitempty"`
	From        string      `json:"from,omitempty"`
	Remaining   *uint64     `json:"remaining,omitempty"`
	Datetime    string      `json:"datetime,omitempty"`
}

func parseAmount(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v, nil
}

// Hash computes the transaction ID (BLAKE3 hash of the signing bytes).
// Signatures and the ID itself are excluded.
func (tx *Transaction) Hash() types.Hash {
	return crypto.Hash(tx.SigningBytes())
}

// SigningBytes returns the canonical byte representation used for signing.
// Strings are length-prefixed; optional fields carry a presence byte.
func (tx *Transaction) SigningBytes() []byte {
	var buf []byte

	buf = binary.LittleEndian.AppendUint32(buf, tx.Version)
	buf = appendString(buf, string(tx.Operation))

	if tx.Asset != nil {
		buf = append(buf, 1)
		buf = appendString(buf, tx.Asset.Name)
		buf = binary.LittleEndian.AppendUint64(buf, tx.Asset.Supply)
	} else {
		buf = append(buf, 0)
	}

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		if in.Fulfills != nil {
			buf = append(buf, 1)
			buf = append(buf, in.Fulfills.TxID[:]...)
			buf = binary.LittleEndian.AppendUint32(buf, in.Fulfills.Index)
		} else {
			buf = append(buf, 0)
		}
		buf = appendStrings(buf, in.OwnersBefore)
	}

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		buf = appendStrings(buf, out.PublicKeys)
		buf = binary.LittleEndian.AppendUint64(buf, out.Amount)
	}

	md := tx.Metadata
	buf = appendString(buf, string(md.Asset))
	buf = appendString(buf, md.Description)
	buf = appendString(buf, md.TransferTo)
	buf = appendString(buf, md.From)
	if md.Remaining != nil {
		buf = append(buf, 1)
		buf = binary.LittleEndian.AppendUint64(buf, *md.Remaining)
	} else {
		buf = append(buf, 0)
	}
	buf = appendString(buf, md.Datetime)

	return buf
}

func appendString(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func appendStrings(buf []byte, ss []string) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(ss)))
	for _, s := range ss {
		buf = appendString(buf, s)
	}
	return buf
}

// TotalOutputValue returns the sum of all output amounts.
// Returns an error if the sum overflows uint64.
func (tx *Transaction) TotalOutputValue() (uint64, error) {
	var total uint64
	for _, out := range tx.Outputs {
		if total > math.MaxUint64-out.Amount {
			return 0, fmt.Errorf("output value overflow")
		}
		total += out.Amount
	}
	return total, nil
}

// Outpoint returns the reference to output index i of this transaction.
func (tx *Transaction) Outpoint(i uint32) types.Outpoint {
	return types.Outpoint{TxID: tx.ID, Index: i}
}
