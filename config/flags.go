package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

// Flags holds parsed command-line flags.
type Flags struct {
	// Commands
	Help    bool
	Version bool

	// Core
	Network string
	DataDir string
	Config  string

	// RPC
	RPC        bool
	RPCAddr    string
	RPCPort    int
	RPCAllowed string
	RPCCORS    string

	// Ledger
	LedgerURL     string
	LedgerTimeout time.Duration
	LedgerListen  string
	LedgerDB      string

	// Issuers
	TokenSeed string
	FiatSeed  string

	// Engine
	Compensate      bool
	ConflictRetries int
	AutoIssue       bool

	// Wallet store
	StoreDriver string
	StoreDSN    string

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args
	Args []string

	// Explicitly-set flags (for true/false and zero overrides).
	SetRPC             bool
	SetCompensate      bool
	SetConflictRetries bool
	SetAutoIssue       bool
	SetLogJSON         bool
}

// ParseFlags parses command-line flags for the named program, exiting on
// parse errors the way a daemon entry point expects.
func ParseFlags(program string) *Flags {
	f, err := parseArgs(program, os.Args[1:])
	if err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return f
}

// parseArgs parses args into Flags.
func parseArgs(program string, args []string) (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet(program, flag.ContinueOnError)

	// Commands
	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")
	fs.BoolVar(&f.Version, "v", false, "Show version (shorthand)")

	// Core
	fs.StringVar(&f.Network, "network", "", "Network type (mainnet or testnet)")
	testnet := fs.Bool("testnet", false, "Use testnet (shorthand for --network=testnet)")
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")

	// RPC
	fs.BoolVar(&f.RPC, "rpc", true, "Enable RPC server")
	fs.StringVar(&f.RPCAddr, "rpc-addr", "", "RPC listen address")
	fs.IntVar(&f.RPCPort, "rpc-port", 0, "RPC listen port")
	fs.StringVar(&f.RPCAllowed, "rpc-allowed", "", "Allowed IPs for RPC")
	fs.StringVar(&f.RPCCORS, "rpc-cors", "", "Allowed CORS origins for RPC (comma-separated)")

	// Ledger
	fs.StringVar(&f.LedgerURL, "ledger-url", "", "Ledger JSON-RPC endpoint")
	fs.DurationVar(&f.LedgerTimeout, "ledger-timeout", 0, "Ledger request timeout")
	fs.StringVar(&f.LedgerListen, "ledger-listen", "", "Reference ledger listen address")
	fs.StringVar(&f.LedgerDB, "ledger-db", "", "Reference ledger backend (badger or memory)")

	// Issuers
	fs.StringVar(&f.TokenSeed, "token-seed", "", "CTOKEN issuer seed phrase")
	fs.StringVar(&f.FiatSeed, "myr-seed", "", "MYR issuer seed phrase")

	// Engine
	fs.BoolVar(&f.Compensate, "compensate", true, "Compensate committed legs of failed buy/sell")
	fs.IntVar(&f.ConflictRetries, "conflict-retries", 0, "Rebuilds after a spent-output rejection")
	fs.BoolVar(&f.AutoIssue, "auto-issue", true, "Issue missing genesis at startup")

	// Wallet store
	fs.StringVar(&f.StoreDriver, "store", "", "Wallet store driver (memory or postgres)")
	fs.StringVar(&f.StoreDSN, "store-dsn", "", "Wallet store DSN")

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	fs.Usage = func() {
		printUsage(program)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *testnet {
		f.Network = string(Testnet)
	}
	f.SetRPC = isFlagSet(fs, "rpc")
	f.SetCompensate = isFlagSet(fs, "compensate")
	f.SetConflictRetries = isFlagSet(fs, "conflict-retries")
	f.SetAutoIssue = isFlagSet(fs, "auto-issue")
	f.SetLogJSON = isFlagSet(fs, "log-json")

	f.Args = fs.Args()

	// Detect unparsed flags caused by positional arguments stopping the parser.
	for _, arg := range f.Args {
		if strings.HasPrefix(arg, "-") {
			return nil, fmt.Errorf("flag %q was not parsed (positional argument stopped parsing)", arg)
		}
	}

	return f, nil
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	// Core
	if f.Network != "" {
		cfg.Network = NetworkType(f.Network)
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}

	// RPC
	if f.SetRPC {
		cfg.RPC.Enabled = f.RPC
	}
	if f.RPCAddr != "" {
		cfg.RPC.Addr = f.RPCAddr
	}
	if f.RPCPort != 0 {
		cfg.RPC.Port = f.RPCPort
	}
	if f.RPCAllowed != "" {
		cfg.RPC.AllowedIPs = parseStringList(f.RPCAllowed)
	}
	if f.RPCCORS != "" {
		cfg.RPC.CORSOrigins = parseStringList(f.RPCCORS)
	}

	// Ledger
	if f.LedgerURL != "" {
		cfg.Ledger.URL = f.LedgerURL
	}
	if f.LedgerTimeout != 0 {
		cfg.Ledger.Timeout = f.LedgerTimeout
	}
	if f.LedgerListen != "" {
		cfg.Ledger.Listen = f.LedgerListen
	}
	if f.LedgerDB != "" {
		cfg.Ledger.DB = strings.ToLower(f.LedgerDB)
	}

	// Issuers
	if f.TokenSeed != "" {
		cfg.Issuer.TokenSeed = f.TokenSeed
	}
	if f.FiatSeed != "" {
		cfg.Issuer.FiatSeed = f.FiatSeed
	}

	// Engine
	if f.SetCompensate {
		cfg.Engine.Compensate = f.Compensate
	}
	if f.SetConflictRetries {
		cfg.Engine.ConflictRetries = f.ConflictRetries
	}
	if f.SetAutoIssue {
		cfg.Engine.AutoIssue = f.AutoIssue
	}

	// Wallet store
	if f.StoreDriver != "" {
		cfg.Store.Driver = strings.ToLower(f.StoreDriver)
	}
	if f.StoreDSN != "" {
		cfg.Store.DSN = f.StoreDSN
	}

	// Logging
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func printUsage(program string) {
	usage := `Cryptoken - dual-asset wallet engine (CTOKEN / MYR)

Usage:
  ` + program + ` [options]
  ` + program + ` --help

Commands:
  --help, -h      Show this help message
  --version, -v   Show version information

Core Options:
  --network       Network type: mainnet (default) or testnet
  --testnet       Shorthand for --network=testnet
  --datadir       Data directory (default: ~/.cryptoken)
  --config, -c    Config file path (default: <datadir>/cryptoken.conf)

RPC Options:
  --rpc           Enable RPC server (default: true)
  --rpc-addr      RPC listen address (default: 127.0.0.1)
  --rpc-port      RPC port (mainnet: 8580, testnet: 8680)
  --rpc-allowed   Allowed IPs for RPC (comma-separated)
  --rpc-cors      Allowed CORS origins for RPC (comma-separated)

Ledger Options:
  --ledger-url      Ledger JSON-RPC endpoint (default: http://127.0.0.1:9984)
  --ledger-timeout  Ledger request timeout (default: 10s)
  --ledger-listen   Reference ledger listen address (ledgerd only)
  --ledger-db       Reference ledger backend: badger (default) or memory

Issuer Options:
  --token-seed    CTOKEN issuer BIP-39 seed phrase
  --myr-seed      MYR issuer BIP-39 seed phrase

Engine Options:
  --compensate        Compensate committed legs of failed buy/sell (default: true)
  --conflict-retries  Rebuilds after a spent-output rejection (default: 0)
  --auto-issue        Issue missing genesis at startup (default: true)

Store Options:
  --store         Wallet store driver: memory (default) or postgres
  --store-dsn     PostgreSQL connection string

Logging Options:
  --log-level     Log level: debug, info, warn, error (default: info)
  --log-file      Log file path (default: stdout)
  --log-json      Output logs as JSON

Examples:
  # Start the reference ledger
  ledgerd --ledger-db=badger

  # Start the wallet API against it
  cryptokend --store=postgres --store-dsn=postgres://localhost/cryptoken
`
	fmt.Print(usage)
}

// Load loads configuration with the following precedence:
// 1. Default values
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. Command-line flags
func Load(program string) (*Config, *Flags, error) {
	flags := ParseFlags(program)

	// Handle help/version
	if flags.Help {
		printUsage(program)
		os.Exit(0)
	}
	if flags.Version {
		fmt.Printf("%s version 0.1.0\n", program)
		os.Exit(0)
	}

	cfg, err := Resolve(flags)
	if err != nil {
		return nil, nil, err
	}
	return cfg, flags, nil
}

// Resolve builds a validated Config from defaults, the config file and the
// given flags.
func Resolve(flags *Flags) (*Config, error) {
	// Determine network first (needed for defaults)
	network := Mainnet
	if strings.ToLower(flags.Network) == string(Testnet) {
		network = Testnet
	}

	cfg := Default(network)

	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	// Auto-create data directories and default config on first start.
	if err := EnsureDataDirs(cfg); err != nil {
		return nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}

	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, fmt.Errorf("applying config file: %w", err)
	}

	// Apply flags (highest precedence)
	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// EnsureDataDirs creates the data directories and writes a default config
// file if none exists.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.NetworkDataDir(),
		cfg.LedgerDir(),
		cfg.LogsDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	// Create default config if it doesn't exist.
	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath, cfg.Network); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}

	return nil
}
