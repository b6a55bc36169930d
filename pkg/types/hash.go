// Package types defines the values shared by the engine and the ledger:
// transaction ids, output references, assets and key encodings.
package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// HashSize is the length of a transaction id in bytes.
const HashSize = 32

// Hash is a transaction id: the BLAKE3 digest of a transaction's signing
// bytes. It travels as lowercase hex in JSON and on the command line.
type Hash [HashSize]byte

// IsZero reports whether h is unset. EnsureIssued returns the zero hash
// when nothing was issued.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON accepts a hex id. An empty string decodes to the zero hash,
// as the ledger sends for a missing id.
func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*h = Hash{}
		return nil
	}
	parsed, err := HexToHash(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// HexToHash parses a 64-character hex transaction id.
func HexToHash(s string) (Hash, error) {
	var h Hash
	if len(s) != 2*HashSize {
		return h, fmt.Errorf("transaction id must be %d hex characters, got %d", 2*HashSize, len(s))
	}
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return Hash{}, fmt.Errorf("invalid hex: %w", err)
	}
	return h, nil
}
