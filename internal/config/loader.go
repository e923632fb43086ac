package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "crewforge.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "CREWFORGE_PORT")
	setString(&cfg.Server.CORSOrigin, "CREWFORGE_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "CREWFORGE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "CREWFORGE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "CREWFORGE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "CREWFORGE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "CREWFORGE_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "CREWFORGE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "CREWFORGE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "CREWFORGE_LOG_ASYNC")
	setDuration(&cfg.Scheduler.TickInterval, "CREWFORGE_TICK_INTERVAL")
	setInt(&cfg.Scheduler.WorkerBatch, "CREWFORGE_WORKER_BATCH")
	setInt(&cfg.Scheduler.ManagerBatch, "CREWFORGE_MANAGER_BATCH")
	setDuration(&cfg.Scheduler.IdleCooldown, "CREWFORGE_IDLE_COOLDOWN")
	setInt(&cfg.Scheduler.ChatRepliesPerTick, "CREWFORGE_CHAT_REPLIES_PER_TICK")
	setInt(&cfg.Engine.MaxAttempts, "CREWFORGE_ENGINE_MAX_ATTEMPTS")
	setDuration(&cfg.Engine.BackoffCap, "CREWFORGE_ENGINE_BACKOFF_CAP")
	setString(&cfg.Provider.URL, "CREWFORGE_PROVIDER_URL")
	setFloat64(&cfg.Provider.CostPerCall, "CREWFORGE_COST_PER_CALL")
	setString(&cfg.Artifacts.Dir, "CREWFORGE_ARTIFACTS_DIR")
	setInt(&cfg.Git.MaxConcurrent, "CREWFORGE_GIT_MAX_CONCURRENT")
	setBool(&cfg.Telemetry.Enabled, "CREWFORGE_TELEMETRY_ENABLED")
	setString(&cfg.Telemetry.OTLPEndpoint, "CREWFORGE_OTLP_ENDPOINT")
	setString(&cfg.Secrets.KeyFile, "CREWFORGE_KEY_FILE")
	setString(&cfg.Secrets.MasterKey, "CREWFORGE_MASTER_KEY")
}

// validate rejects configurations the service cannot run with.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server port must not be empty")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres dsn must not be empty")
	}
	if cfg.Scheduler.TickInterval <= 0 {
		return errors.New("scheduler tick interval must be positive")
	}
	if cfg.Scheduler.WorkerBatch < 1 || cfg.Scheduler.ManagerBatch < 1 {
		return errors.New("scheduler batch sizes must be at least 1")
	}
	if cfg.Engine.MaxAttempts < 1 {
		return errors.New("engine max attempts must be at least 1")
	}
	return nil
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, env string) {
	if v := os.Getenv(env); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setInt(dst *int, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, env string) {
	if v := os.Getenv(env); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setDuration(dst *time.Duration, env string) {
	if v := os.Getenv(env); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
