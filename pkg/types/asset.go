package types

import (
	"fmt"
	"strings"
)

// Asset tags a transaction and its outputs with the asset they move.
type Asset string

const (
	// AssetToken is the platform token (CTOKEN).
	AssetToken Asset = "CTOKEN"
	// AssetFiat is the MYR-pegged fiat representation.
	AssetFiat Asset = "MYR"
)

// Assets lists every asset the engine manages, token first.
var Assets = []Asset{AssetToken, AssetFiat}

// Valid reports whether a is a known asset.
func (a Asset) Valid() bool {
	return a == AssetToken || a == AssetFiat
}

// String returns the asset ticker.
func (a Asset) String() string {
	return string(a)
}

// DisplayName returns the long name used in genesis asset data.
func (a Asset) DisplayName() string {
	switch a {
	case AssetToken:
		return "CTOKEN (Cryptoken)"
	case AssetFiat:
		return "MYR (Malaysian Ringgit)"
	default:
		return string(a)
	}
}

// ParseAsset parses an asset ticker, case-insensitively.
func ParseAsset(s string) (Asset, error) {
	a := Asset(strings.ToUpper(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", fmt.Errorf("unknown asset %q", s)
	}
	return a, nil
}
