package observability

import (
	"os"
	"strconv"
	"strings"

	"github.com/smallbiznis/agentdesk/internal/config"
)

const defaultSamplingRatio = 0.1

// Config is the logging and telemetry view of the app configuration. The
// standard OTEL_* variables win over the app settings.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	out := Config{
		ServiceName:          firstNonEmpty(cfg.AppName, "agentdesk"),
		Environment:          firstNonEmpty(os.Getenv("DEPLOYMENT_ENV"), cfg.Environment),
		Version:              firstNonEmpty(os.Getenv("SERVICE_VERSION"), cfg.AppVersion),
		LogLevel:             lower(firstNonEmpty(os.Getenv("LOG_LEVEL"), "info")),
		LogFormat:            lower(firstNonEmpty(os.Getenv("LOG_FORMAT"), "json")),
		OtelExporterEndpoint: firstNonEmpty(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), cfg.OTLPEndpoint),
		OtelExporterProtocol: lower(firstNonEmpty(
			os.Getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL"),
			os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL"),
			"grpc",
		)),
		OtelSamplingRatio: defaultSamplingRatio,
	}

	out.OtelEnabled = out.OtelExporterEndpoint != ""
	if raw := lower(os.Getenv("OTEL_ENABLED")); raw != "" {
		if enabled, err := strconv.ParseBool(raw); err == nil {
			out.OtelEnabled = enabled
		}
	}
	if raw := strings.TrimSpace(os.Getenv("OTEL_SAMPLING_RATIO")); raw != "" {
		if ratio, err := strconv.ParseFloat(raw, 64); err == nil && ratio >= 0 && ratio <= 1 {
			out.OtelSamplingRatio = ratio
		}
	}
	return out
}

// Debug is true for debug logging or any non-production style environment.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch lower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
