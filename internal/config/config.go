package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	IDFormatShort = "short"
	IDFormatUUID  = "uuid"
)

type Config struct {
	Environment string `toml:"environment"`
	Host        string `toml:"host"`
	Port        int    `toml:"port"`

	// logging
	LogLevel      string `toml:"log_level"`
	LogsPath      string `toml:"logs_path"`
	LogToStdout   bool   `toml:"log_to_stdout"`
	LogFormatJSON bool   `toml:"log_format_json"`
	SentryEnabled bool   `toml:"sentry_enabled"`

	// postgres (durable store)
	PostgresHost     string `toml:"postgres_host"`
	PostgresPort     string `toml:"postgres_port"`
	PostgresDBName   string `toml:"postgres_db_name"`
	PostgresUser     string `toml:"postgres_user"`
	DBConnectTimeout int    `toml:"db_connect_timeout_seconds"`

	// durable mode user lookup cache
	UserCacheSizeMB     int `toml:"user_cache_size_mb"`
	UserCacheTTLSeconds int `toml:"user_cache_ttl_seconds"`

	// in-memory fallback store
	FallbackIDFormat string `toml:"fallback_id_format"`

	// redis, used for write rate limiting
	RedisEnabled    bool   `toml:"redis_enabled"`
	RedisHost       string `toml:"redis_host"`
	RedisPort       string `toml:"redis_port"`
	RateLimitPerMin int    `toml:"rate_limit_per_min"`

	// kafka, exercise events
	KafkaBrokers []string `toml:"kafka_brokers"`
	KafkaTopic   string   `toml:"kafka_topic"`

	// prometheus metrics listener
	MetricsHost string `toml:"metrics_host"`
	MetricsPort string `toml:"metrics_port"`

	CorsAllowedOrigins []string `toml:"cors_allowed_origins"`
}

type Toml struct {
	Development *Config
	Production  *Config
}

func (t *Toml) Get(env string) (*Config, error) {
	switch strings.ToLower(env) {
	case "dev", "development":
		if t.Development == nil {
			return nil, fmt.Errorf("no [development] section in config")
		}
		return t.Development, nil
	case "prod", "production":
		if t.Production == nil {
			return nil, fmt.Errorf("no [production] section in config")
		}
		return t.Production, nil
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}
}

// Load reads the TOML file at path, picks the section for env, applies
// defaults and then the environment variable overrides.
func Load(env, path string) (*Config, error) {
	var tomlConfig Toml
	if _, err := toml.DecodeFile(path, &tomlConfig); err != nil {
		return nil, fmt.Errorf("decode config file %s: %w", path, err)
	}

	cfg, err := tomlConfig.Get(env)
	if err != nil {
		return nil, err
	}

	if cfg.Environment == "" {
		cfg.Environment = strings.ToLower(env)
	}
	cfg.applyDefaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 3000
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.PostgresPort == "" {
		c.PostgresPort = "5432"
	}
	if c.PostgresDBName == "" {
		c.PostgresDBName = "exercise_tracker"
	}
	if c.PostgresUser == "" {
		c.PostgresUser = "postgres"
	}
	if c.DBConnectTimeout <= 0 {
		c.DBConnectTimeout = 5
	}
	if c.UserCacheSizeMB <= 0 {
		c.UserCacheSizeMB = 10
	}
	if c.FallbackIDFormat == "" {
		c.FallbackIDFormat = IDFormatShort
	}
	if c.RedisPort == "" {
		c.RedisPort = "6379"
	}
	if c.RateLimitPerMin <= 0 {
		c.RateLimitPerMin = 120
	}
	if c.KafkaTopic == "" {
		c.KafkaTopic = "exercise-tracker.exercises"
	}
	if c.MetricsPort == "" {
		c.MetricsPort = "2112"
	}
}

func (c *Config) applyEnv() error {
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid PORT env var [%s]: %w", port, err)
		}
		c.Port = p
	}
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		c.PostgresHost = host
	}
	if port := os.Getenv("POSTGRES_PORT"); port != "" {
		c.PostgresPort = port
	}
	if dbName := os.Getenv("POSTGRES_DB"); dbName != "" {
		c.PostgresDBName = dbName
	}
	if user := os.Getenv("POSTGRES_USER"); user != "" {
		c.PostgresUser = user
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.KafkaBrokers = splitAndTrim(brokers)
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	switch c.FallbackIDFormat {
	case IDFormatShort, IDFormatUUID:
	default:
		return fmt.Errorf("unknown fallback_id_format: %s", c.FallbackIDFormat)
	}
	return nil
}

func (c *Config) DBConnectTimeoutDuration() time.Duration {
	return time.Duration(c.DBConnectTimeout) * time.Second
}

func (c *Config) UserCacheTTL() time.Duration {
	return time.Duration(c.UserCacheTTLSeconds) * time.Second
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
