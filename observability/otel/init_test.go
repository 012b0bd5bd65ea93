package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"healthkey/config"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" authorization = Bearer abc ,x-tenant=ops,,broken, =skip")
	require.Equal(t, map[string]string{
		"authorization": "Bearer abc",
		"x-tenant":      "ops",
	}, headers)
	require.Empty(t, ParseHeaders(""))
}

func TestFromNodeConfig(t *testing.T) {
	cfg := FromNodeConfig(&config.Config{
		ChainID:     "healthkey-local",
		Environment: "staging",
		Telemetry: config.TelemetryConfig{
			Endpoint:    "collector:4318",
			Traces:      true,
			Headers:     "k=v",
			SampleRatio: 0.25,
		},
	})
	require.Equal(t, DefaultServiceName, cfg.ServiceName)
	require.Equal(t, "healthkey-local", cfg.ChainID)
	require.Equal(t, "collector:4318", cfg.Endpoint)
	require.Equal(t, map[string]string{"k": "v"}, cfg.Headers)
	require.True(t, cfg.Enabled())
	require.Contains(t, cfg.sampler().Description(), "TraceIDRatioBased")

	require.False(t, FromNodeConfig(nil).Enabled())
}

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
