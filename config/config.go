// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Issuance rules: asset supply and issuer derivation, fixed per network
//   - Node settings: runtime configuration, can vary per deployment
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// =============================================================================
// Node Configuration (runtime, per-deployment settings)
// =============================================================================

// Config holds runtime configuration for the wallet daemon and the
// reference ledger daemon.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// RPC server (wallet API)
	RPC RPCConfig

	// Ledger service (client side and reference daemon)
	Ledger LedgerConfig

	// Issuer accounts
	Issuer IssuerConfig

	// Transaction engine behavior
	Engine EngineConfig

	// Wallet store
	Store StoreConfig

	// Logging
	Log LogConfig
}

// RPCConfig holds RPC server settings.
type RPCConfig struct {
	Enabled     bool     `conf:"rpc.enabled"`
	Addr        string   `conf:"rpc.addr"`
	Port        int      `conf:"rpc.port"`
	AllowedIPs  []string `conf:"rpc.allowed"`
	CORSOrigins []string `conf:"rpc.cors"` // Allowed CORS origins ("*" = all).
}

// LedgerConfig holds ledger service settings.
// URL and Timeout are used by the wallet daemon's client; Listen and DB by
// the reference ledger daemon.
type LedgerConfig struct {
	URL     string        `conf:"ledger.url"`
	Timeout time.Duration `conf:"ledger.timeout"`
	Listen  string        `conf:"ledger.listen"`
	DB      string        `conf:"ledger.db"` // badger or memory
}

// IssuerConfig holds the issuer seed phrases and per-asset supply.
type IssuerConfig struct {
	TokenSeed string `conf:"issuer.token_seed"`
	FiatSeed  string `conf:"issuer.myr_seed"`
	Supply    uint64 `conf:"issuer.supply"`
}

// EngineConfig holds transaction engine settings.
type EngineConfig struct {
	Compensate      bool `conf:"engine.compensate"`       // Undo leg 1 when leg 2 of buy/sell fails.
	ConflictRetries int  `conf:"engine.conflict_retries"` // Rebuilds after a spent-output rejection.
	AutoIssue       bool `conf:"engine.auto_issue"`       // Issue missing genesis at startup.
}

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Reference ledger database backends.
const (
	LedgerDBBadger = "badger"
	LedgerDBMemory = "memory"
)

// StoreConfig holds wallet store settings.
type StoreConfig struct {
	Driver string `conf:"store.driver"`
	DSN    string `conf:"store.dsn"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.cryptoken
//	macOS:   ~/Library/Application Support/Cryptoken
//	Windows: %APPDATA%\Cryptoken
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cryptoken"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Cryptoken")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Cryptoken")
		}
		return filepath.Join(home, "AppData", "Roaming", "Cryptoken")
	default:
		return filepath.Join(home, ".cryptoken")
	}
}

// NetworkDataDir returns the network-specific data directory.
func (c *Config) NetworkDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// LedgerDir returns the reference ledger database directory.
func (c *Config) LedgerDir() string {
	return filepath.Join(c.NetworkDataDir(), "ledger")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "cryptoken.conf")
}

// RPCListenAddr returns the host:port the wallet API listens on.
func (c *Config) RPCListenAddr() string {
	return JoinHostPort(c.RPC.Addr, c.RPC.Port)
}
