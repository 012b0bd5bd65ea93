package config

import (
	"fmt"
	"strings"
)

// MaxCallDepthLimit bounds the configurable cross-program call depth.
const MaxCallDepthLimit = 16

var validLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// Validate checks a loaded configuration for values the node cannot run with.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		return fmt.Errorf("RPCAddress must be set")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("DataDir must be set")
	}
	if cfg.MaxCallDepth < 0 || cfg.MaxCallDepth > MaxCallDepthLimit {
		return fmt.Errorf("MaxCallDepth must be between 0 and %d", MaxCallDepthLimit)
	}
	if _, ok := validLogLevels[strings.ToLower(cfg.Log.Level)]; !ok {
		return fmt.Errorf("log.Level %q is not one of debug, info, warn, error", cfg.Log.Level)
	}
	if cfg.Log.MaxSizeMB < 0 || cfg.Log.MaxBackups < 0 || cfg.Log.MaxAgeDays < 0 {
		return fmt.Errorf("log rotation limits must not be negative")
	}
	if cfg.RPC.RequestsPerMinute < 0 || cfg.RPC.Burst < 0 {
		return fmt.Errorf("rpc rate limits must not be negative")
	}
	if cfg.RPC.IdempotencyTTLSeconds < 0 {
		return fmt.Errorf("rpc.IdempotencyTTLSeconds must not be negative")
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.SampleRatio must be within [0, 1]")
	}
	if cfg.Indexer.Enabled {
		switch cfg.Indexer.Driver {
		case "sqlite", "postgres":
		default:
			return fmt.Errorf("indexer.Driver %q is not supported", cfg.Indexer.Driver)
		}
		if strings.TrimSpace(cfg.Indexer.DSN) == "" {
			return fmt.Errorf("indexer.DSN must be set")
		}
	}
	return nil
}
