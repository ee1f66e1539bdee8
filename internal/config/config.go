package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName              string        `mapstructure:"app_name"`
	Env                  string        `mapstructure:"app_env"`
	LogLevel             string        `mapstructure:"log_level"`
	LogOutput            string        `mapstructure:"log_output"`
	EndpointsFile        string        `mapstructure:"endpoints_file"`
	PublishersFile       string        `mapstructure:"publishers_file"`
	ProbeIntervalSeconds int64         `mapstructure:"probe_interval"`
	ProbeInterval        time.Duration `mapstructure:"-"`
	HTTPTimeoutSeconds   int64         `mapstructure:"http_timeout_seconds"`
	HTTPTimeout          time.Duration `mapstructure:"-"`
	UserAgent            string        `mapstructure:"user_agent"`
	PublishUnchanged     bool          `mapstructure:"publish_unchanged"`
	MetricsAddr          string        `mapstructure:"metrics_addr"`

	StorageType            string        `mapstructure:"storage_type"`
	BBoltPath              string        `mapstructure:"bbolt_path"`
	StorageTTLSeconds      int64         `mapstructure:"storage_ttl_seconds"`
	StorageCleanupSeconds  int64         `mapstructure:"storage_cleanup_interval_seconds"`
	StorageTTL             time.Duration `mapstructure:"-"`
	StorageCleanupInterval time.Duration `mapstructure:"-"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()

	v.SetDefault("app_name", "jsonapi-probe")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_output", "stdout")
	v.SetDefault("endpoints_file", "./configs/endpoints.yaml")
	v.SetDefault("publishers_file", "./configs/publishers.yaml")
	v.SetDefault("probe_interval", 60) // seconds
	v.SetDefault("http_timeout_seconds", 10)
	v.SetDefault("user_agent", "jsonapi-probe/1.0")
	v.SetDefault("publish_unchanged", false)
	v.SetDefault("metrics_addr", "")
	v.SetDefault("storage_type", "bbolt")
	v.SetDefault("bbolt_path", "./data/outcomes.db")
	v.SetDefault("storage_ttl_seconds", int64((24*time.Hour)/time.Second))
	v.SetDefault("storage_cleanup_interval_seconds", int64((6*time.Hour)/time.Second))

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// finalize validates raw values and derives durations.
func (cfg *Config) finalize() error {
	if cfg.ProbeIntervalSeconds <= 0 {
		return fmt.Errorf("invalid probe_interval (must be positive seconds)")
	}
	cfg.ProbeInterval = time.Duration(cfg.ProbeIntervalSeconds) * time.Second

	if cfg.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid http_timeout_seconds (must be positive seconds)")
	}
	cfg.HTTPTimeout = time.Duration(cfg.HTTPTimeoutSeconds) * time.Second

	if cfg.StorageTTLSeconds <= 0 {
		return fmt.Errorf("invalid storage_ttl_seconds (must be positive seconds)")
	}
	if cfg.StorageCleanupSeconds <= 0 {
		return fmt.Errorf("invalid storage_cleanup_interval_seconds (must be positive seconds)")
	}
	cfg.StorageTTL = time.Duration(cfg.StorageTTLSeconds) * time.Second
	cfg.StorageCleanupInterval = time.Duration(cfg.StorageCleanupSeconds) * time.Second

	switch strings.ToLower(strings.TrimSpace(cfg.LogOutput)) {
	case "", "stdout", "stderr":
	default:
		return fmt.Errorf("invalid log_output %q (expected stdout or stderr)", cfg.LogOutput)
	}
	return nil
}
