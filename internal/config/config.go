package config

import (
	"os"
	"strconv"
)

// Config holds process-level configuration for the component runtime.
// Per-component configuration (ports, capability tuning, budgets) arrives
// via the Blueprint, not environment variables; this Config covers
// only the ambient knobs the harness itself needs before any blueprint
// is loaded.
type Config struct {
	Telemetry TelemetryConfig
	Harness   HarnessConfig
	State     StateConfig
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// HarnessConfig holds the supervisor's process-level defaults.
type HarnessConfig struct {
	ShutdownGraceMs      int
	MergerFairnessWindow int
	DefaultBufferSize    int
}

// StateConfig selects and configures the default StateCapability
// adapter.
type StateConfig struct {
	Adapter string // "sqlite" | "redis"
	SQLite  SQLiteConfig
	Redis   RedisConfig
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Addr string
	DB   int
}

// Load reads configuration from environment variables with sensible
// defaults.
func Load() *Config {
	return &Config{
		Telemetry: TelemetryConfig{
			Enabled:      envBool("KERNEL_OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "autocoder-kernel"),
		},
		Harness: HarnessConfig{
			ShutdownGraceMs:      envInt("KERNEL_SHUTDOWN_GRACE_MS", 30000),
			MergerFairnessWindow: envInt("KERNEL_MERGER_FAIRNESS_WINDOW", 8),
			DefaultBufferSize:    envInt("KERNEL_DEFAULT_BUFFER_SIZE", 1024),
		},
		State: StateConfig{
			Adapter: envStr("KERNEL_STATE_ADAPTER", "sqlite"),
			SQLite: SQLiteConfig{
				Path: envStr("KERNEL_STATE_SQLITE_PATH", "kernel_state.db"),
			},
			Redis: RedisConfig{
				Addr: envStr("KERNEL_STATE_REDIS_ADDR", "localhost:6379"),
				DB:   envInt("KERNEL_STATE_REDIS_DB", 0),
			},
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
