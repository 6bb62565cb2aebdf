package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/joshdurbin/shortlink/internal/repository/sqlstore"
	"github.com/joshdurbin/shortlink/internal/shortener"
	"github.com/joshdurbin/shortlink/internal/telemetry"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig                  `mapstructure:"server"`
	Database  DatabaseConfig                `mapstructure:"database"`
	Search    telemetry.ElasticsearchConfig `mapstructure:"search"`
	Shortener shortener.Config              `mapstructure:"shortener"`
	Telemetry TelemetryConfig               `mapstructure:"telemetry"`
	Logging   LoggingConfig                 `mapstructure:"logging"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port string `mapstructure:"port"`

	// URL is the origin of shortened links; empty derives it per request
	URL string `mapstructure:"url"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// TelemetryConfig holds pipeline tuning and the request log file settings
type TelemetryConfig struct {
	telemetry.Config `mapstructure:",squash"`
	File             telemetry.FileSinkConfig `mapstructure:",squash"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// envBindings maps configuration keys to environment variables
var envBindings = map[string]string{
	"server.port":            "PORT",
	"server.url":             "SERVER_URL",
	"database.driver":        "DATABASE_DRIVER",
	"database.dsn":           "DATABASE_URL",
	"search.enabled":         "ELASTICSEARCH_ENABLED",
	"search.url":             "ELASTICSEARCH_URL",
	"search.username":        "ELASTICSEARCH_USER",
	"search.password":        "ELASTICSEARCH_PASSWORD",
	"search.index":           "ELASTICSEARCH_INDEX",
	"shortener.length":       "SHORT_CODE_LENGTH",
	"shortener.max_attempts": "SHORT_CODE_MAX_ATTEMPTS",
	"telemetry.log_file":     "REQUEST_LOG_FILE",
	"logging.level":          "LOG_LEVEL",
	"logging.format":         "LOG_FORMAT",
}

// SetDefaults registers default values and environment bindings on v
func SetDefaults(v *viper.Viper) {
	pipeline := telemetry.DefaultConfig()
	gen := shortener.DefaultConfig()

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.url", "")
	v.SetDefault("database.driver", sqlstore.DriverSQLite)
	v.SetDefault("database.dsn", "urls.db")
	v.SetDefault("search.enabled", false)
	v.SetDefault("search.url", "http://localhost:9200")
	v.SetDefault("search.username", "elastic")
	v.SetDefault("search.password", "")
	v.SetDefault("search.index", telemetry.DefaultIndex)
	v.SetDefault("shortener.length", gen.Length)
	v.SetDefault("shortener.max_attempts", gen.MaxAttempts)
	v.SetDefault("telemetry.queue_size", pipeline.QueueSize)
	v.SetDefault("telemetry.workers", pipeline.Workers)
	v.SetDefault("telemetry.sink_timeout", pipeline.SinkTimeout)
	v.SetDefault("telemetry.log_file", "logs/url_shortener.log")
	v.SetDefault("telemetry.log_max_size_mb", 1)
	v.SetDefault("telemetry.log_max_backups", 10)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	for key, env := range envBindings {
		// BindEnv only fails when called without a key
		_ = v.BindEnv(key, env)
	}
}

// Load reads the optional config file named by v's "config" key, then
// unmarshals and validates the merged configuration
func Load(v *viper.Viper) (*Config, error) {
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// validate validates the configuration values
func (c *Config) validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server port cannot be empty"))
	}

	if !slices.Contains(sqlstore.Drivers(), c.Database.Driver) {
		errs = append(errs, fmt.Errorf("database driver must be one of %s, got: %q",
			strings.Join(sqlstore.Drivers(), ", "), c.Database.Driver))
	}

	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database DSN cannot be empty"))
	}

	if c.Search.Enabled && c.Search.URL == "" {
		errs = append(errs, errors.New("search URL cannot be empty when search is enabled"))
	}

	if c.Shortener.Length < 1 || c.Shortener.Length > shortener.MaxLength {
		errs = append(errs, fmt.Errorf("short code length must be between 1 and %d, got: %d",
			shortener.MaxLength, c.Shortener.Length))
	}

	if c.Shortener.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max attempts must be at least 1, got: %d", c.Shortener.MaxAttempts))
	}

	if c.Telemetry.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("telemetry queue size must be positive, got: %d", c.Telemetry.QueueSize))
	}

	if c.Telemetry.Workers < 1 {
		errs = append(errs, fmt.Errorf("telemetry workers must be positive, got: %d", c.Telemetry.Workers))
	}

	if c.Telemetry.SinkTimeout <= 0 {
		errs = append(errs, fmt.Errorf("telemetry sink timeout must be positive, got: %v", c.Telemetry.SinkTimeout))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log format must be text or json, got: %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}
