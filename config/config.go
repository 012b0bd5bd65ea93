package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"healthkey/crypto"
)

// keystoreLight selects cheap scrypt parameters for generated keystores.
// Tests flip it.
var keystoreLight = false

type Config struct {
	RPCAddress           string `toml:"RPCAddress"`
	DataDir              string `toml:"DataDir"`
	GenesisFile          string `toml:"GenesisFile"`
	ChainID              string `toml:"ChainID,omitempty"`
	OperatorKeystorePath string `toml:"OperatorKeystorePath"`
	MaxCallDepth         int    `toml:"MaxCallDepth"`
	Environment          string `toml:"Environment"`

	Log       LogConfig       `toml:"log"`
	RPC       RPCConfig       `toml:"rpc"`
	Indexer   IndexerConfig   `toml:"indexer"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Pauses    Pauses          `toml:"pauses"`
}

// LogConfig controls structured logging. An empty File logs to stdout only.
type LogConfig struct {
	Level      string `toml:"Level"`
	File       string `toml:"File,omitempty"`
	MaxSizeMB  int    `toml:"MaxSizeMB,omitempty"`
	MaxBackups int    `toml:"MaxBackups,omitempty"`
	MaxAgeDays int    `toml:"MaxAgeDays,omitempty"`
}

type RPCConfig struct {
	RequestsPerMinute     float64  `toml:"RequestsPerMinute"`
	Burst                 int      `toml:"Burst"`
	TrustProxyHeaders     bool     `toml:"TrustProxyHeaders"`
	AuthSecretEnv         string   `toml:"AuthSecretEnv,omitempty"`
	AuthIssuer            string   `toml:"AuthIssuer,omitempty"`
	AuthAudience          string   `toml:"AuthAudience,omitempty"`
	IdempotencyFile       string   `toml:"IdempotencyFile,omitempty"`
	IdempotencyTTLSeconds int      `toml:"IdempotencyTTLSeconds,omitempty"`
	AllowedOrigins        []string `toml:"AllowedOrigins,omitempty"`
}

// AuthSecret resolves the bearer token secret from the environment.
func (c RPCConfig) AuthSecret() string {
	if strings.TrimSpace(c.AuthSecretEnv) == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(c.AuthSecretEnv))
}

type IndexerConfig struct {
	Enabled bool   `toml:"Enabled"`
	Driver  string `toml:"Driver"`
	DSN     string `toml:"DSN"`
}

type TelemetryConfig struct {
	Endpoint string `toml:"Endpoint,omitempty"`
	Insecure bool   `toml:"Insecure"`
	Traces   bool   `toml:"Traces"`
	Metrics  bool   `toml:"Metrics"`
	Headers  string `toml:"Headers,omitempty"`
	// SampleRatio is the fraction of root spans kept. Zero keeps all.
	SampleRatio float64 `toml:"SampleRatio,omitempty"`
}

// Pauses halts individual programs. It satisfies common.PauseView.
type Pauses struct {
	System    bool `toml:"System"`
	Token     bool `toml:"Token"`
	HealthKey bool `toml:"HealthKey"`
}

func (p Pauses) IsPaused(program string) bool {
	switch strings.ToLower(strings.TrimSpace(program)) {
	case "system":
		return p.System
	case "token":
		return p.Token
	case "healthkey":
		return p.HealthKey
	default:
		return false
	}
}

// Load loads the configuration from the given path, writing a default file
// and operator keystore when it does not exist yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %q", path, undecoded[0].String())
	}

	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = "127.0.0.1:8899"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./healthkey-data"
	}
	if strings.TrimSpace(c.Log.Level) == "" {
		c.Log.Level = "info"
	}
	if strings.TrimSpace(c.Indexer.Driver) == "" {
		c.Indexer.Driver = "sqlite"
	}
	if c.Indexer.Enabled && strings.TrimSpace(c.Indexer.DSN) == "" && c.Indexer.Driver == "sqlite" {
		c.Indexer.DSN = filepath.Join(c.DataDir, "indexer.db")
	}
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.OperatorKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, "", keystoreLight); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.OperatorKeystorePath != keystorePath {
		cfg.OperatorKeystorePath = keystorePath
		return persist(configPath, cfg)
	}
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, "", keystoreLight); err != nil {
		return nil, err
	}

	cfg := &Config{
		RPCAddress:  "127.0.0.1:8899",
		DataDir:     "./healthkey-data",
		GenesisFile: "genesis.yaml",
		Environment: "local",
		Log:         LogConfig{Level: "info"},
		RPC: RPCConfig{
			RequestsPerMinute:     600,
			Burst:                 60,
			IdempotencyTTLSeconds: 86400,
		},
		Indexer: IndexerConfig{Enabled: true, Driver: "sqlite"},
	}
	cfg.OperatorKeystorePath = keystorePath
	cfg.applyDefaults()

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "operator.keystore")
}
