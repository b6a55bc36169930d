// Package engine implements the wallet transaction engine: issuer accounts,
// balances, transfer building, and the composite wallet operations on top
// of an output-based ledger.
package engine

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/cryptoken/config"
	"github.com/Klingon-tech/cryptoken/internal/keys"
	"github.com/Klingon-tech/cryptoken/internal/ledger"
	klog "github.com/Klingon-tech/cryptoken/internal/log"
	"github.com/Klingon-tech/cryptoken/internal/secret"
	"github.com/Klingon-tech/cryptoken/internal/walletstore"
	"github.com/Klingon-tech/cryptoken/pkg/types"
)

// Config holds the engine's collaborators and settings.
type Config struct {
	Ledger ledger.Ledger
	Store  walletstore.Store
	Hasher secret.Hasher

	// Issuer seed phrases (BIP-39).
	TokenSeed string
	FiatSeed  string

	// Supply is the total issued per asset.
	Supply uint64

	// CompensateFailedLegs reverses the committed first leg of a buy or
	// sell when the second leg fails.
	CompensateFailedLegs bool

	// ConflictRetries is how many times a transfer is rebuilt after the
	// ledger reports one of its inputs as already spent.
	ConflictRetries int

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// ConfigFrom builds an engine Config from the application config.
func ConfigFrom(cfg *config.Config, l ledger.Ledger, store walletstore.Store, hasher secret.Hasher) Config {
	return Config{
		Ledger:               l,
		Store:                store,
		Hasher:               hasher,
		TokenSeed:            cfg.Issuer.TokenSeed,
		FiatSeed:             cfg.Issuer.FiatSeed,
		Supply:               cfg.Issuer.Supply,
		CompensateFailedLegs: cfg.Engine.Compensate,
		ConflictRetries:      cfg.Engine.ConflictRetries,
	}
}

// Engine runs wallet operations against a ledger. Safe for concurrent use;
// operations on the same key may race and the ledger rejects the loser.
type Engine struct {
	ledger     ledger.Ledger
	store      walletstore.Store
	hasher     secret.Hasher
	auth       *keys.Authority
	supply     uint64
	compensate bool
	retries    int
	now        func() time.Time
	logger     zerolog.Logger
}

// New validates cfg and derives the issuer keys.
func New(cfg Config) (*Engine, error) {
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("%w: ledger is required", ErrInvalidConfig)
	}
	if cfg.Hasher == nil {
		return nil, fmt.Errorf("%w: hasher is required", ErrInvalidConfig)
	}
	if cfg.TokenSeed == "" || cfg.FiatSeed == "" {
		return nil, fmt.Errorf("%w: token and fiat issuer seed phrases are required", ErrInvalidConfig)
	}
	if !keys.ValidateMnemonic(cfg.TokenSeed) {
		return nil, fmt.Errorf("%w: token issuer seed is not a valid BIP-39 mnemonic", ErrInvalidConfig)
	}
	if !keys.ValidateMnemonic(cfg.FiatSeed) {
		return nil, fmt.Errorf("%w: fiat issuer seed is not a valid BIP-39 mnemonic", ErrInvalidConfig)
	}
	if cfg.Supply == 0 {
		return nil, fmt.Errorf("%w: supply must be positive", ErrInvalidConfig)
	}
	if cfg.ConflictRetries < 0 {
		return nil, fmt.Errorf("%w: conflict retries must not be negative", ErrInvalidConfig)
	}

	auth, err := keys.NewAuthority(cfg.TokenSeed, cfg.FiatSeed)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		ledger:     cfg.Ledger,
		store:      cfg.Store,
		hasher:     cfg.Hasher,
		auth:       auth,
		supply:     cfg.Supply,
		compensate: cfg.CompensateFailedLegs,
		retries:    cfg.ConflictRetries,
		now:        now,
		logger:     klog.Engine,
	}, nil
}

// Issuer returns the public key of the issuer of asset.
func (e *Engine) Issuer(asset types.Asset) (string, error) {
	kp, err := e.auth.Issuer(asset)
	if err != nil {
		return "", err
	}
	return kp.PublicKey, nil
}

// Supply returns the per-asset total supply.
func (e *Engine) Supply() uint64 {
	return e.supply
}

// Ledger returns the ledger the engine commits to.
func (e *Engine) Ledger() ledger.Ledger {
	return e.ledger
}

// timestamp formats the current time for transaction metadata.
func (e *Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}
