package observability

import (
	"testing"

	"github.com/smallbiznis/agentdesk/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigPrefersOtelEnvironment(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "HTTP")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.5")
	t.Setenv("LOG_LEVEL", "")

	cfg := LoadConfig(config.Config{AppName: "agentdesk-api", Environment: "production", OTLPEndpoint: "localhost:4317"})
	assert.Equal(t, "agentdesk-api", cfg.ServiceName)
	assert.Equal(t, "collector:4318", cfg.OtelExporterEndpoint)
	assert.Equal(t, "http", cfg.OtelExporterProtocol)
	assert.Equal(t, 0.5, cfg.OtelSamplingRatio)
	assert.True(t, cfg.OtelEnabled)
	assert.False(t, cfg.Debug())
}

func TestLoadConfigDisablesOtelExplicitly(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "false")
	t.Setenv("OTEL_SAMPLING_RATIO", "7")

	cfg := LoadConfig(config.Config{Environment: "local", OTLPEndpoint: "localhost:4317"})
	assert.False(t, cfg.OtelEnabled)
	assert.Equal(t, defaultSamplingRatio, cfg.OtelSamplingRatio)
	assert.Equal(t, "agentdesk", cfg.ServiceName)
	assert.True(t, cfg.Debug())
}
