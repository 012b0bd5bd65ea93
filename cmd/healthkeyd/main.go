package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"healthkey/config"
	"healthkey/core"
	"healthkey/core/genesis"
	"healthkey/core/types"
	"healthkey/crypto"
	"healthkey/indexer"
	"healthkey/native/system"
	"healthkey/observability/logging"
	telemetry "healthkey/observability/otel"
	"healthkey/rpc"
	"healthkey/storage"
)

const (
	operatorPassEnv = "HEALTHKEY_OPERATOR_PASS"
	genesisPathEnv  = "HEALTHKEY_GENESIS"
	envEnv          = "HEALTHKEY_ENV"

	idempotencyPruneInterval = 10 * time.Minute
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis YAML file (overrides HEALTHKEY_GENESIS and config GenesisFile)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	env := strings.TrimSpace(os.Getenv(envEnv))
	if env == "" {
		env = cfg.Environment
	}
	logger, logCloser := logging.Setup(logging.Options{
		Service:    telemetry.DefaultServiceName,
		Env:        env,
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	genesisPath := resolveGenesisPath(*genesisFlag, cfg.GenesisFile, os.LookupEnv)
	if err := run(ctx, cfg, genesisPath, logger); err != nil {
		logger.Error("healthkeyd exited", slog.Any("error", err))
		os.Exit(1)
	}
}

// run owns every long-lived resource of the daemon and releases them when ctx
// is cancelled.
func run(ctx context.Context, cfg *config.Config, genesisPath string, logger *slog.Logger) error {
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.FromNodeConfig(cfg))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("prepare data directory: %w", err)
	}
	operator, err := loadOperator(cfg.OperatorKeystorePath)
	if err != nil {
		return err
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
	if err != nil {
		return fmt.Errorf("open ledger database: %w", err)
	}
	defer db.Close()

	spec, err := loadGenesis(genesisPath)
	if err != nil {
		return err
	}
	node, err := core.NewNode(db, core.Config{
		ChainID:      cfg.ChainID,
		MaxCallDepth: cfg.MaxCallDepth,
		Genesis:      spec,
		Pauses:       cfg.Pauses,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("open node: %w", err)
	}
	defer node.Close()
	if err := verifyOperator(node, operator, logger); err != nil {
		return err
	}

	var history rpc.RewardHistory
	if cfg.Indexer.Enabled {
		ix, err := indexer.Open(cfg.Indexer.Driver, cfg.Indexer.DSN, logger)
		if err != nil {
			return fmt.Errorf("open indexer: %w", err)
		}
		defer ix.Close()
		node.AddEventSink(ix)
		history = ix
		logger.Info("indexer enabled",
			slog.String("driver", cfg.Indexer.Driver),
			logging.MaskField("dsn", cfg.Indexer.DSN))
	}

	ttl := time.Duration(cfg.RPC.IdempotencyTTLSeconds) * time.Second
	idempotencyPath := cfg.RPC.IdempotencyFile
	if strings.TrimSpace(idempotencyPath) == "" {
		idempotencyPath = filepath.Join(cfg.DataDir, "idempotency.db")
	}
	idem, err := rpc.OpenIdempotencyStore(idempotencyPath, ttl)
	if err != nil {
		return fmt.Errorf("open idempotency store: %w", err)
	}
	defer idem.Close()
	go pruneIdempotency(ctx, idem, logger)

	server := rpc.NewServer(node, history, rpc.Config{
		RequestsPerMinute: cfg.RPC.RequestsPerMinute,
		Burst:             cfg.RPC.Burst,
		TrustProxyHeaders: cfg.RPC.TrustProxyHeaders,
		AuthSecret:        cfg.RPC.AuthSecret(),
		AuthIssuer:        cfg.RPC.AuthIssuer,
		AuthAudience:      cfg.RPC.AuthAudience,
		Idempotency:       idem,
		AllowedOrigins:    cfg.RPC.AllowedOrigins,
		Logger:            logger,
	})
	listener, err := net.Listen("tcp", cfg.RPCAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.RPCAddress, err)
	}
	head := node.Head()
	logger.Info("healthkeyd started",
		slog.String("chain_id", node.ChainID()),
		slog.Uint64("slot", head.Slot),
		slog.String("addr", listener.Addr().String()))
	return server.Serve(ctx, listener)
}

func resolveGenesisPath(flagValue, configValue string, lookup func(string) (string, bool)) string {
	if trimmed := strings.TrimSpace(flagValue); trimmed != "" {
		return trimmed
	}
	if value, ok := lookup(genesisPathEnv); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return strings.TrimSpace(configValue)
}

// loadGenesis returns nil when no genesis file is present; the node then
// requires an existing ledger.
func loadGenesis(path string) (*genesis.GenesisSpec, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	spec, err := genesis.LoadGenesisSpec(path)
	if err != nil {
		return nil, fmt.Errorf("load genesis: %w", err)
	}
	return spec, nil
}

func loadOperator(path string) (*crypto.PrivateKey, error) {
	key, err := crypto.LoadFromKeystore(path, os.Getenv(operatorPassEnv))
	if err != nil {
		return nil, fmt.Errorf("load operator keystore %s: %w", path, err)
	}
	return key, nil
}

// verifyOperator signs a transaction for the opened ledger with the operator
// key and checks that its fee payer recovers to the operator address after a
// wire round trip. Nothing is submitted.
func verifyOperator(node *core.Node, key *crypto.PrivateKey, logger *slog.Logger) error {
	addr := key.PubKey().Address().Raw()
	nonce, err := node.Nonce(addr)
	if err != nil {
		return fmt.Errorf("operator nonce: %w", err)
	}
	tx := &types.Transaction{
		ChainID:     node.ChainID(),
		Nonce:       nonce,
		Instruction: types.Instruction{ProgramID: system.ProgramID},
	}
	if err := tx.Sign(key.PrivateKey); err != nil {
		return fmt.Errorf("operator sign: %w", err)
	}
	raw, err := tx.Encode()
	if err != nil {
		return fmt.Errorf("operator encode: %w", err)
	}
	decoded, err := types.DecodeTransaction(raw)
	if err != nil {
		return fmt.Errorf("operator decode: %w", err)
	}
	payer, err := decoded.FeePayer()
	if err != nil {
		return fmt.Errorf("operator recover: %w", err)
	}
	if payer != addr {
		return fmt.Errorf("operator key recovers to %s, expected %s", crypto.FromRaw(payer), crypto.FromRaw(addr))
	}
	account, err := node.Account(addr)
	if err != nil {
		return fmt.Errorf("operator account: %w", err)
	}
	logger.Info("operator key verified",
		slog.String("addr", crypto.FromRaw(addr).String()),
		slog.Uint64("nonce", nonce),
		slog.Uint64("lamports", account.Lamports))
	return nil
}

func pruneIdempotency(ctx context.Context, store *rpc.IdempotencyStore, logger *slog.Logger) {
	ticker := time.NewTicker(idempotencyPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.Prune()
			if err != nil {
				logger.Warn("idempotency prune failed", slog.Any("error", err))
				continue
			}
			if removed > 0 {
				logger.Debug("idempotency entries pruned", slog.Int("removed", removed))
			}
		}
	}
}
