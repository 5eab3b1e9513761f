// Package config loads the apexorm CLI settings from apexorm.yaml and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/apexorm/apexorm/internal/orm/dialect"
)

// EnvPrefix prefixes environment overrides, e.g. APEXORM_DATABASE_DRIVER
const EnvPrefix = "APEXORM"

// Config is the CLI configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Models   []string       `mapstructure:"models"`
	Media    MediaConfig    `mapstructure:"media"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig is the connection and its pool
type DatabaseConfig struct {
	dialect.Config  `mapstructure:",squash"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// MediaConfig is where file fields are stored
type MediaConfig struct {
	Root    string `mapstructure:"root"`
	BaseURL string `mapstructure:"base_url"`
}

// LogConfig sets the log level
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Pool returns the pool options, falling back to the defaults for unset values
func (d DatabaseConfig) Pool() dialect.PoolOptions {
	p := dialect.DefaultPoolOptions()
	if d.MaxOpenConns > 0 {
		p.MaxOpenConns = d.MaxOpenConns
	}
	if d.MaxIdleConns > 0 {
		p.MaxIdleConns = d.MaxIdleConns
	}
	if d.ConnMaxLifetime > 0 {
		p.ConnMaxLifetime = d.ConnMaxLifetime
	}
	return p
}

// Load reads the configuration from path, or from apexorm.yaml (or .yml) in
// the working directory when path is empty. A missing default file is not
// an error. DATABASE_URL overrides database.url.
func Load(path string) (*Config, error) {
	v := viper.New()

	// every key gets a default so AutomaticEnv can override it
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "")
	v.SetDefault("database.path", "apexorm.db")
	v.SetDefault("database.sslmode", "")
	v.SetDefault("database.max_open_conns", 0)
	v.SetDefault("database.max_idle_conns", 0)
	v.SetDefault("database.conn_max_lifetime", "0s")
	v.SetDefault("models", []string{})
	v.SetDefault("media.root", "media")
	v.SetDefault("media.base_url", "/media")
	v.SetDefault("log.level", "")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("apexorm")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
		if _, env := os.LookupEnv(EnvPrefix + "_DATABASE_DRIVER"); !env && !v.InConfig("database.driver") {
			cfg.Database.Driver = DriverForURL(url, cfg.Database.Driver)
		}
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DriverForURL guesses the driver from the URL scheme, returning fallback
// when the scheme says nothing.
func DriverForURL(url, fallback string) string {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return "pgx"
	case strings.HasPrefix(url, "file:"):
		if fallback == "sqlite" {
			return fallback
		}
		return "sqlite3"
	default:
		return fallback
	}
}

func validate(cfg *Config) error {
	if _, err := dialect.ForDriver(cfg.Database.Driver); err != nil {
		return fmt.Errorf("database.driver: %w", err)
	}
	if cfg.Database.MaxOpenConns < 0 || cfg.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database pool sizes must not be negative")
	}
	for _, m := range cfg.Models {
		if strings.TrimSpace(m) == "" {
			return fmt.Errorf("models must not contain empty paths")
		}
	}
	return nil
}
