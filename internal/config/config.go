package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	FeeSchedulePath string

	RateLimit   RateLimitConfig
	Storage     StorageConfig
	Bootstrap   BootstrapConfig
	MetricsPush MetricsPushConfig
}

// RateLimitConfig configures the Redis-backed submission limiter and the
// per-request lifecycle lock.
type RateLimitConfig struct {
	Enabled                  bool
	RedisAddr                string
	RedisPassword            string
	RedisDB                  int
	SubmissionRate           float64
	SubmissionBurst          int
	LifecycleLockTTLSeconds  int
	LifecycleLockWaitSeconds int
}

// StorageConfig configures presigned artifact uploads.
type StorageConfig struct {
	Bucket        string
	Region        string
	Endpoint      string
	PublicBaseURL string
	UploadTTL     time.Duration
}

type BootstrapConfig struct {
	AdminID string
}

// MetricsPushConfig configures pushing Prometheus metrics to a remote
// collector. An empty Exporter disables pushing.
type MetricsPushConfig struct {
	Exporter  string
	Endpoint  string
	AuthToken string
	Interval  time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:         getenv("APP_SERVICE", "agentdesk"),
		AppVersion:      getenv("APP_VERSION", "0.1.0"),
		Environment:     getenv("ENVIRONMENT", "development"),
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:    getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:          strings.ToLower(getenv("DATABASE_TYPE", "postgres")),
		DBHost:          getenv("DATABASE_HOST", "localhost"),
		DBPort:          getenv("DATABASE_PORT", "5432"),
		DBName:          getenv("DATABASE_NAME", "agentdesk"),
		DBUser:          getenv("DATABASE_USER", "postgres"),
		DBPassword:      getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:       getenv("DATABASE_SSLMODE", "disable"),
		DBPath:          getenv("DATABASE_PATH", "agentdesk.db"),
		DBMaxIdleConn:   getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:   getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		FeeSchedulePath: strings.TrimSpace(getenv("FEE_SCHEDULE_PATH", "")),
		RateLimit: RateLimitConfig{
			Enabled:                  getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:                strings.TrimSpace(getenv("REDIS_ADDR", "localhost:6379")),
			RedisPassword:            strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			RedisDB:                  getenvInt("REDIS_DB", 0),
			SubmissionRate:           getenvFloat("SUBMISSION_RATE", 0.5),
			SubmissionBurst:          getenvInt("SUBMISSION_BURST", 10),
			LifecycleLockTTLSeconds:  getenvInt("LIFECYCLE_LOCK_TTL_SECONDS", 15),
			LifecycleLockWaitSeconds: getenvInt("LIFECYCLE_LOCK_WAIT_SECONDS", 5),
		},
		Storage: StorageConfig{
			Bucket:        strings.TrimSpace(getenv("ARTIFACT_BUCKET", "")),
			Region:        strings.TrimSpace(getenv("ARTIFACT_REGION", "eu-west-1")),
			Endpoint:      strings.TrimSpace(getenv("ARTIFACT_ENDPOINT", "")),
			PublicBaseURL: strings.TrimRight(strings.TrimSpace(getenv("ARTIFACT_PUBLIC_BASE_URL", "")), "/"),
			UploadTTL:     getenvDuration("ARTIFACT_UPLOAD_TTL", 15*time.Minute),
		},
		Bootstrap: BootstrapConfig{
			AdminID: strings.TrimSpace(getenv("BOOTSTRAP_ADMIN_ID", "")),
		},
		MetricsPush: MetricsPushConfig{
			Exporter:  strings.TrimSpace(getenv("METRICS_PUSH_EXPORTER", "")),
			Endpoint:  strings.TrimSpace(getenv("METRICS_PUSH_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("METRICS_PUSH_TOKEN", "")),
			Interval:  getenvDuration("METRICS_PUSH_INTERVAL", 15*time.Second),
		},
	}

	cfg.DBConnMaxLifetime = getenvInt("DATABASE_CONN_MAX_LIFETIME", 300)
	cfg.DBConnMaxIdleTime = getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60)

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

// Module provides Config and the hot-reloading fee schedule.
var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(provideFeeScheduleHolder),
)

func provideFeeScheduleHolder(cfg Config) (*FeeScheduleHolder, error) {
	return NewFeeScheduleHolder(cfg.FeeSchedulePath)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
