package types

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// Key sizes in bytes.
const (
	PublicKeySize  = 33 // Compressed secp256k1 point.
	PrivateKeySize = 32
)

// EncodeKey returns the base58 text form of a raw key.
func EncodeKey(raw []byte) string {
	return base58.Encode(raw)
}

// DecodePublicKey decodes a base58 public key and checks its length.
func DecodePublicKey(s string) ([]byte, error) {
	return decodeKey(s, PublicKeySize, "public")
}

// DecodePrivateKey decodes a base58 private key and checks its length.
func DecodePrivateKey(s string) ([]byte, error) {
	return decodeKey(s, PrivateKeySize, "private")
}

func decodeKey(s string, size int, kind string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("%s key is empty", kind)
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%s key: invalid base58: %w", kind, err)
	}
	if len(raw) != size {
		return nil, fmt.Errorf("%s key must be %d bytes, got %d", kind, size, len(raw))
	}
	return raw, nil
}
