package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"healthkey/config"
	"healthkey/core"
	"healthkey/core/genesis"
	"healthkey/crypto"
	"healthkey/storage"
)

func TestResolveGenesisPathPrecedence(t *testing.T) {
	lookup := func(values map[string]string) func(string) (string, bool) {
		return func(key string) (string, bool) {
			v, ok := values[key]
			return v, ok
		}
	}
	env := lookup(map[string]string{genesisPathEnv: " /env/genesis.yaml "})

	require.Equal(t, "/flag.yaml", resolveGenesisPath(" /flag.yaml", "/cfg.yaml", env))
	require.Equal(t, "/env/genesis.yaml", resolveGenesisPath("", "/cfg.yaml", env))
	require.Equal(t, "/cfg.yaml", resolveGenesisPath("", "/cfg.yaml", lookup(nil)))
	require.Equal(t, "", resolveGenesisPath("", "", lookup(nil)))
}

func TestLoadGenesisMissingFileIsOptional(t *testing.T) {
	spec, err := loadGenesis(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Nil(t, spec)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("chainId: x\nunknown: 1\n"), 0o600))
	_, err = loadGenesis(bad)
	require.Error(t, err)
}

func TestRunStartsAndStopsCleanly(t *testing.T) {
	dir := t.TempDir()
	keystore := filepath.Join(dir, "operator.keystore")
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	require.NoError(t, crypto.SaveToKeystore(keystore, key, "", true))

	genesisPath := filepath.Join(dir, "genesis.yaml")
	doc := fmt.Sprintf(`genesisTime: "2024-01-01T00:00:00Z"
chainId: healthkeyd-test
lamportsPerByte: 1
rewardMint:
  seed: health
  authority: %s
  decimals: 6
vault:
  balance: 500
`, crypto.FromRaw([20]byte{0xA1}).String())
	require.NoError(t, os.WriteFile(genesisPath, []byte(doc), 0o600))

	cfg := &config.Config{
		RPCAddress:           "127.0.0.1:0",
		DataDir:              filepath.Join(dir, "data"),
		OperatorKeystorePath: keystore,
		Log:                  config.LogConfig{Level: "info"},
		RPC:                  config.RPCConfig{RequestsPerMinute: 60, Burst: 10, IdempotencyTTLSeconds: 60},
		Indexer: config.IndexerConfig{
			Enabled: true,
			Driver:  "sqlite",
			DSN:     filepath.Join(dir, "data", "indexer.db"),
		},
	}
	require.NoError(t, config.Validate(cfg))
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, run(ctx, cfg, genesisPath, logger))

	// The ledger persists, so a restart needs no genesis.
	require.NoError(t, run(ctx, cfg, "", logger))
	require.FileExists(t, filepath.Join(dir, "data", "idempotency.db"))
}

func TestVerifyOperatorReportsFundedKey(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	operator := key.PubKey().Address()

	spec, err := genesis.ParseGenesisSpec([]byte(fmt.Sprintf(`genesisTime: "2024-01-01T00:00:00Z"
chainId: healthkeyd-operator
lamportsPerByte: 1
rewardMint:
  seed: health
  authority: %s
  decimals: 6
vault:
  balance: 10
alloc:
  %s: 777
`, crypto.FromRaw([20]byte{0xA1}).String(), operator.String())))
	require.NoError(t, err)
	node, err := core.NewNode(storage.NewMemDB(), core.Config{Genesis: spec})
	require.NoError(t, err)
	defer node.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	require.NoError(t, verifyOperator(node, key, logger))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "operator key verified", entry["msg"])
	require.Equal(t, operator.String(), entry["addr"])
	require.EqualValues(t, 777, entry["lamports"])
	require.EqualValues(t, 0, entry["nonce"])
}
