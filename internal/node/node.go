// Package node assembles the wallet service and the reference ledger from
// a config.Config so they can be embedded in any binary.
package node

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Klingon-tech/cryptoken/config"
	"github.com/Klingon-tech/cryptoken/internal/engine"
	"github.com/Klingon-tech/cryptoken/internal/ledger"
	klog "github.com/Klingon-tech/cryptoken/internal/log"
	"github.com/Klingon-tech/cryptoken/internal/rpc"
	"github.com/Klingon-tech/cryptoken/internal/secret"
	"github.com/Klingon-tech/cryptoken/internal/storage"
	"github.com/Klingon-tech/cryptoken/internal/walletstore"
	"github.com/Klingon-tech/cryptoken/internal/walletstore/postgres"
	"github.com/Klingon-tech/cryptoken/pkg/types"
	"github.com/rs/zerolog"
)

// Node is a fully-initialized wallet service: wallet store, ledger client,
// transaction engine and JSON-RPC API.
type Node struct {
	cfg    *config.Config
	logger zerolog.Logger

	store     walletstore.Store
	pool      *postgres.Pool // nil unless store.driver=postgres
	ledger    ledger.Ledger
	engine    *engine.Engine
	rpcServer *rpc.Server
}

// New creates and initializes a wallet Node. It opens the wallet store and
// builds the engine but does not issue assets or serve requests; call
// Start for that.
func New(ctx context.Context, cfg *config.Config) (*Node, error) {
	logger, err := initLogger(cfg, "cryptoken.log")
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("network", string(cfg.Network)).
		Str("ledger", cfg.Ledger.URL).
		Str("store", cfg.Store.Driver).
		Msg("Starting Cryptoken wallet service")

	n := &Node{cfg: cfg, logger: logger}

	// ── Wallet store ────────────────────────────────────────────────
	switch cfg.Store.Driver {
	case config.StorePostgres:
		pool, err := postgres.NewPool(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("open wallet store: %w", err)
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate wallet store: %w", err)
		}
		n.pool = pool
		n.store = postgres.NewStore(pool)
	default:
		n.store = walletstore.NewMemory()
		logger.Warn().Msg("Using in-memory wallet store; registrations are lost on restart")
	}

	// ── Ledger client ───────────────────────────────────────────────
	n.ledger = ledger.NewClient(cfg.Ledger.URL, cfg.Ledger.Timeout)

	// ── Engine ──────────────────────────────────────────────────────
	eng, err := engine.New(engine.ConfigFrom(cfg, n.ledger, n.store, secret.NewBcrypt(secret.DefaultCost)))
	if err != nil {
		n.Stop()
		return nil, err
	}
	n.engine = eng

	for _, asset := range types.Assets {
		pub, _ := eng.Issuer(asset)
		logger.Info().Str("asset", asset.String()).Str("issuer", pub).Msg("Issuer key loaded")
	}

	// ── RPC ─────────────────────────────────────────────────────────
	if cfg.RPC.Enabled {
		n.rpcServer = rpc.New(cfg.RPCListenAddr(), cfg.RPC)
		n.rpcServer.SetEngine(eng)
	} else {
		logger.Warn().Msg("RPC disabled by config")
	}

	return n, nil
}

// Start issues missing genesis transactions when engine.auto_issue is set
// and starts the RPC server.
func (n *Node) Start(ctx context.Context) error {
	if n.cfg.Engine.AutoIssue {
		issued, err := n.engine.EnsureAllIssued(ctx)
		if err != nil {
			return fmt.Errorf("issue assets: %w", err)
		}
		for asset, id := range issued {
			if id.IsZero() {
				n.logger.Info().Str("asset", asset.String()).Msg("Issuer already holds supply")
				continue
			}
			n.logger.Info().Str("asset", asset.String()).Str("tx_id", id.String()).Msg("Asset issued")
		}
	}

	if n.rpcServer != nil {
		if err := n.rpcServer.Start(); err != nil {
			return err
		}
		n.logger.Info().Str("addr", n.rpcServer.Addr()).Msg("RPC server started")
	}

	n.logger.Info().Msg("Wallet service started successfully")
	return nil
}

// Stop performs graceful shutdown in reverse order.
func (n *Node) Stop() {
	if n.rpcServer != nil {
		n.rpcServer.Stop()
	}
	if n.pool != nil {
		n.pool.Close()
	}
	n.logger.Info().Msg("Goodbye!")
}

// RPCAddr returns the address the RPC server is listening on.
func (n *Node) RPCAddr() string {
	if n.rpcServer == nil {
		return ""
	}
	return n.rpcServer.Addr()
}

// Engine returns the transaction engine.
func (n *Node) Engine() *engine.Engine {
	return n.engine
}

// LedgerNode is the reference ledger daemon: a ledger.Local served over
// JSON-RPC.
type LedgerNode struct {
	cfg       *config.Config
	logger    zerolog.Logger
	db        storage.DB
	local     *ledger.Local
	rpcServer *rpc.Server
}

// NewLedger opens the ledger database for cfg.Network and prepares its RPC
// server. Each network keeps its records under its own key prefix.
func NewLedger(cfg *config.Config) (*LedgerNode, error) {
	logger, err := initLogger(cfg, "ledger.log")
	if err != nil {
		return nil, err
	}

	var db storage.DB
	switch cfg.Ledger.DB {
	case config.LedgerDBMemory:
		db = storage.NewMemory()
		logger.Warn().Msg("Using in-memory ledger; transactions are lost on restart")
	default:
		bdb, err := storage.NewBadger(cfg.LedgerDir())
		if err != nil {
			return nil, fmt.Errorf("open database at %s: %w", cfg.LedgerDir(), err)
		}
		db = bdb
		logger.Info().Str("path", cfg.LedgerDir()).Msg("Database opened")
	}

	local := ledger.NewLocal(storage.NewPrefixDB(db, []byte(string(cfg.Network)+"/")))

	count, err := local.TxCount()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("count transactions: %w", err)
	}
	commitment, err := local.Commitment()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("output commitment: %w", err)
	}
	logger.Info().
		Str("network", string(cfg.Network)).
		Int("transactions", count).
		Str("commitment", commitment.String()).
		Msg("Ledger loaded")

	srv := rpc.New(cfg.Ledger.Listen, cfg.RPC)
	srv.SetLedger(local)

	return &LedgerNode{cfg: cfg, logger: logger, db: db, local: local, rpcServer: srv}, nil
}

// Start starts serving the ledger.
func (l *LedgerNode) Start() error {
	if err := l.rpcServer.Start(); err != nil {
		return err
	}
	l.logger.Info().Str("addr", l.rpcServer.Addr()).Msg("Ledger RPC server started")
	return nil
}

// Stop stops the RPC server and closes the database.
func (l *LedgerNode) Stop() {
	l.rpcServer.Stop()
	for _, asset := range types.Assets {
		if n, err := l.local.Circulating(asset); err == nil {
			l.logger.Info().Str("asset", asset.String()).Uint64("unspent", n).Msg("Ledger state")
		}
	}
	l.db.Close()
	l.logger.Info().Msg("Goodbye!")
}

// Addr returns the address the ledger is listening on.
func (l *LedgerNode) Addr() string {
	return l.rpcServer.Addr()
}

// Local returns the underlying ledger.
func (l *LedgerNode) Local() *ledger.Local {
	return l.local
}

// initLogger initializes the global logger from cfg. Without log.file, logs
// also go to name under the logs directory.
func initLogger(cfg *config.Config, name string) (zerolog.Logger, error) {
	logFile := expandHome(cfg.Log.File)
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return zerolog.Logger{}, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = filepath.Join(logsDir, name)
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return zerolog.Logger{}, fmt.Errorf("initializing logger: %w", err)
	}
	return klog.WithComponent("node"), nil
}
