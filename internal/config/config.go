package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"genescore/domain/scoring"
	"genescore/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Admin    AdminConfig
	Scoring  scoring.Params
	LogLevel string
}

// DatabaseConfig holds database connection settings. Persistence is
// optional: an empty URL runs without a repository.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// Enabled reports whether a database is configured
func (d DatabaseConfig) Enabled() bool { return d.URL != "" }

// ServerConfig holds web server settings
type ServerConfig struct {
	Port            string
	GinMode         string
	ShutdownTimeout time.Duration
	RunTimeout      time.Duration // bounds asynchronous API runs; 0 means none
}

// AdminConfig holds the health, metrics and pprof listener settings
type AdminConfig struct {
	Port    string
	Enabled bool
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Database: *loadDatabaseConfig(),
		Server:   *loadServerConfig(),
		Admin:    *loadAdminConfig(),
		Scoring:  LoadScoringParams(),
		LogLevel: getEnvOrDefault("LOG_LEVEL", "INFO"),
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

func loadDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		URL:             os.Getenv("DATABASE_URL"),
		MaxOpenConns:    getEnvIntOrDefault("DB_MAX_OPEN_CONNS", 10),
		ConnMaxLifetime: getEnvDurationOrDefault("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

func loadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:            getEnvOrDefault("PORT", "8080"),
		GinMode:         getEnvOrDefault("GIN_MODE", "debug"),
		ShutdownTimeout: getEnvDurationOrDefault("SHUTDOWN_TIMEOUT", 10*time.Second),
		RunTimeout:      getEnvDurationOrDefault("RUN_TIMEOUT", 30*time.Minute),
	}
}

func loadAdminConfig() *AdminConfig {
	return &AdminConfig{
		Port:    getEnvOrDefault("ADMIN_PORT", "6060"),
		Enabled: getEnvBoolOrDefault("ADMIN_ENABLED", true),
	}
}

// LoadScoringParams returns the scoring defaults with GENESCORE_*
// environment overrides applied.
func LoadScoringParams() scoring.Params {
	p := scoring.DefaultParams()
	p.Method = scoring.Method(getEnvOrDefault("GENESCORE_METHOD", string(p.Method)))
	p.Permutations = getEnvIntOrDefault("GENESCORE_NPERM", p.Permutations)
	p.NeighborMode = scoring.NeighborMode(getEnvOrDefault("GENESCORE_NEIGHBORS_METHOD", string(p.NeighborMode)))
	p.Neighbors = getEnvIntOrDefault("GENESCORE_N_NEIGHBORS", p.Neighbors)
	p.DropFrequency = getEnvIntOrDefault("GENESCORE_DROP_FREQUENCY", p.DropFrequency)
	p.DropThreshold = getEnvFloatOrDefault("GENESCORE_DROP_P_VALUE_THRESHOLD", p.DropThreshold)
	p.Confidence = getEnvFloatOrDefault("GENESCORE_CONFIDENCE", p.Confidence)
	p.Seed = getEnvUintOrDefault("GENESCORE_SEED", p.Seed)
	p.Workers = getEnvIntOrDefault("GENESCORE_WORKERS", p.Workers)
	p.Smooth = getEnvBoolOrDefault("GENESCORE_SMOOTH", p.Smooth)
	p.GlobalFDR = getEnvBoolOrDefault("GENESCORE_GLOBAL_FDR", p.GlobalFDR)
	return p
}

// LoadParamsFile overlays the YAML parameter file at path on base. Keys
// absent from the file keep their base value.
func LoadParamsFile(path string, base scoring.Params) (scoring.Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, errors.Wrapf(err, "failed to read parameter file %s", path)
	}
	params := base
	if err := yaml.Unmarshal(data, &params); err != nil {
		return base, errors.WithCode(errors.CodeConfigInvalid, errors.Wrapf(err, "failed to parse parameter file %s", path))
	}
	if err := params.Validate(); err != nil {
		return base, errors.Wrapf(err, "invalid parameter file %s", path)
	}
	return params, nil
}

func validateConfig(config *Config) error {
	if config.Server.Port == "" {
		return errors.ConfigInvalid("server port is required")
	}
	if config.Admin.Enabled && config.Admin.Port == config.Server.Port {
		return errors.ConfigInvalid("admin port must differ from server port")
	}
	if config.Database.MaxOpenConns <= 0 {
		return errors.ConfigInvalid("DB_MAX_OPEN_CONNS must be positive")
	}
	return config.Scoring.Validate()
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvUintOrDefault(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if uintValue, err := strconv.ParseUint(value, 10, 64); err == nil {
			return uintValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
