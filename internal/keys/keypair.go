package keys

import (
	"fmt"

	"github.com/Klingon-tech/cryptoken/config"
	"github.com/Klingon-tech/cryptoken/pkg/crypto"
	"github.com/Klingon-tech/cryptoken/pkg/types"
)

// Keypair holds the text forms of a secp256k1 key: the base58 compressed
// public key and the base58 private scalar.
type Keypair struct {
	PublicKey  string
	PrivateKey string
}

// Generate returns a fresh random keypair.
func Generate() (Keypair, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return Keypair{}, err
	}
	defer key.Zero()
	return fromPrivateKey(key), nil
}

// FromSeedPhrase derives a keypair from a BIP-39 phrase along a BIP-32 path.
// The same phrase and path always produce the same keypair.
func FromSeedPhrase(mnemonic, path string) (Keypair, error) {
	seed, err := SeedFromMnemonic(mnemonic, "")
	if err != nil {
		return Keypair{}, err
	}
	master, err := NewMasterKey(seed)
	if err != nil {
		return Keypair{}, err
	}
	indices, err := ParsePath(path)
	if err != nil {
		return Keypair{}, err
	}
	child, err := master.DerivePath(indices...)
	if err != nil {
		return Keypair{}, err
	}
	key, err := child.Signer()
	if err != nil {
		return Keypair{}, err
	}
	defer key.Zero()
	return fromPrivateKey(key), nil
}

// Signer decodes the private key for signing. Callers should Zero it when done.
func (kp Keypair) Signer() (*crypto.PrivateKey, error) {
	key, err := crypto.PrivateKeyFromString(kp.PrivateKey)
	if err != nil {
		return nil, err
	}
	if key.PublicKeyString() != kp.PublicKey {
		key.Zero()
		return nil, fmt.Errorf("private key does not match public key %s", kp.PublicKey)
	}
	return key, nil
}

// IsZero reports whether the keypair is unset.
func (kp Keypair) IsZero() bool {
	return kp.PublicKey == "" && kp.PrivateKey == ""
}

func fromPrivateKey(key *crypto.PrivateKey) Keypair {
	return Keypair{
		PublicKey:  key.PublicKeyString(),
		PrivateKey: key.String(),
	}
}

// Authority holds the two issuer keypairs. It is read-only after
// construction and safe for concurrent use.
type Authority struct {
	Token Keypair
	Fiat  Keypair
}

// NewAuthority derives both issuer keypairs from their seed phrases.
func NewAuthority(tokenSeed, fiatSeed string) (*Authority, error) {
	token, err := FromSeedPhrase(tokenSeed, config.TokenIssuerPath)
	if err != nil {
		return nil, fmt.Errorf("token issuer: %w", err)
	}
	fiat, err := FromSeedPhrase(fiatSeed, config.FiatIssuerPath)
	if err != nil {
		return nil, fmt.Errorf("fiat issuer: %w", err)
	}
	if token.PublicKey == fiat.PublicKey {
		return nil, fmt.Errorf("token and fiat issuers must use different keys")
	}
	return &Authority{Token: token, Fiat: fiat}, nil
}

// Issuer returns the issuer keypair for asset.
func (a *Authority) Issuer(asset types.Asset) (Keypair, error) {
	switch asset {
	case types.AssetToken:
		return a.Token, nil
	case types.AssetFiat:
		return a.Fiat, nil
	default:
		return Keypair{}, fmt.Errorf("unknown asset %q", asset)
	}
}
