package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

// Validate checks runtime config for obvious operator mistakes.
// Issuer seeds are optional here (the reference ledger does not need them)
// but must be valid BIP-39 mnemonics when set.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.RPC.Port < 0 || cfg.RPC.Port > 65535 {
		return fmt.Errorf("rpc.port must be in range [0, 65535]")
	}

	if cfg.Ledger.URL != "" {
		u, err := url.Parse(cfg.Ledger.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("ledger.url must be an http(s) URL")
		}
	}
	if cfg.Ledger.Timeout <= 0 {
		return fmt.Errorf("ledger.timeout must be positive")
	}
	switch cfg.Ledger.DB {
	case LedgerDBBadger, LedgerDBMemory:
	default:
		return fmt.Errorf("ledger.db must be %q or %q", LedgerDBBadger, LedgerDBMemory)
	}

	if cfg.Issuer.Supply == 0 {
		return fmt.Errorf("issuer.supply must be positive")
	}
	if err := validateSeed(cfg.Issuer.TokenSeed, "issuer.token_seed"); err != nil {
		return err
	}
	if err := validateSeed(cfg.Issuer.FiatSeed, "issuer.myr_seed"); err != nil {
		return err
	}

	if cfg.Engine.ConflictRetries < 0 {
		return fmt.Errorf("engine.conflict_retries must be >= 0")
	}

	switch cfg.Store.Driver {
	case StoreMemory:
	case StorePostgres:
		if cfg.Store.DSN == "" {
			return fmt.Errorf("store.driver=postgres requires store.dsn")
		}
	default:
		return fmt.Errorf("store.driver must be %q or %q", StoreMemory, StorePostgres)
	}

	return nil
}

func validateSeed(seed, field string) error {
	if seed == "" {
		return nil
	}
	if !bip39.IsMnemonicValid(normalizeSeed(seed)) {
		return fmt.Errorf("%s is not a valid BIP-39 mnemonic", field)
	}
	return nil
}

func normalizeSeed(seed string) string {
	return strings.Join(strings.Fields(strings.ToLower(seed)), " ")
}
