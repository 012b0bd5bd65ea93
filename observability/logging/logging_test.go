package logging

import (
	"bytes"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupEmitsStructuredJSON(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() {
		slog.SetDefault(prev)
		log.SetOutput(os.Stderr)
	})

	var buf bytes.Buffer
	file := filepath.Join(t.TempDir(), "node.log")
	logger, closer := Setup(Options{Service: "healthkeyd", Env: "test", Level: "warn", File: file, Output: &buf})

	logger.Info("suppressed")
	logger.Warn("vault low",
		slog.Uint64("balance", 3),
		MaskField("dsn", "postgres://user:pw@db"),
		slog.String("auth_token", "abc"),
		slog.String("slot", "7"))
	require.NoError(t, closer.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	require.Equal(t, "WARN", entry["severity"])
	require.Equal(t, "vault low", entry["message"])
	require.Equal(t, "healthkeyd", entry["service"])
	require.Equal(t, "test", entry["env"])
	require.Equal(t, RedactedValue, entry["dsn"])
	require.Equal(t, RedactedValue, entry["auth_token"])
	require.Equal(t, "7", entry["slot"])
	require.Contains(t, entry, "timestamp")

	rotated, err := os.ReadFile(file)
	require.NoError(t, err)
	require.Equal(t, buf.String(), string(rotated))
}

func TestMaskingHonoursAllowlist(t *testing.T) {
	require.Equal(t, "abc", MaskField("slot", "abc").Value.String())
	require.Equal(t, RedactedValue, MaskField("secret", "abc").Value.String())
	require.Equal(t, "", MaskValue(""))
	require.Equal(t, RedactedValue, MaskValue("x"))
	require.Contains(t, RedactionAllowlist(), "chain_id")
	require.True(t, IsSensitive("RPC_Secret"))
	require.False(t, IsSensitive("error"))
	require.False(t, IsSensitive("balance"))
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}
