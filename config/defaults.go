package config

import "time"

// DefaultMainnet returns the default configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		RPC: RPCConfig{
			Enabled:    true,
			Addr:       "127.0.0.1",
			Port:       8580,
			AllowedIPs: []string{"127.0.0.1"},
		},
		Ledger: LedgerConfig{
			URL:     "http://127.0.0.1:9984",
			Timeout: 10 * time.Second,
			Listen:  "127.0.0.1:9984",
			DB:      LedgerDBBadger,
		},
		Issuer: IssuerConfig{
			Supply: DefaultSupply,
		},
		Engine: EngineConfig{
			Compensate:      true,
			ConflictRetries: 0,
			AutoIssue:       true,
		},
		Store: StoreConfig{
			Driver: StoreMemory,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.RPC.Port = 8680
	cfg.Ledger.URL = "http://127.0.0.1:9985"
	cfg.Ledger.Listen = "127.0.0.1:9985"
	return cfg
}

// Default returns the default configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	default:
		return DefaultMainnet()
	}
}
