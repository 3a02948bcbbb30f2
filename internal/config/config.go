// Package config loads ormctl settings from an optional YAML file, a .env
// file and ORM_-prefixed environment variables, in increasing precedence.
// DATABASE_URL overrides database.dsn.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/conduit-lang/orm/internal/orm/dialect"
	"github.com/conduit-lang/orm/internal/orm/schema"
)

// EnvPrefix prefixes every environment override, e.g. ORM_DATABASE_DRIVER
const EnvPrefix = "ORM"

// Config represents the ORM configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Naming   NamingConfig   `mapstructure:"naming"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// LogConfig configures the zap logger and the SQL trace
type LogConfig struct {
	Level         string        `mapstructure:"level"`
	Development   bool          `mapstructure:"development"`
	SlowThreshold time.Duration `mapstructure:"slow_threshold"`
}

// NamingConfig configures table name derivation
type NamingConfig struct {
	TablePrefix  string `mapstructure:"table_prefix"`
	PluralTables bool   `mapstructure:"plural_tables"`
}

// Dialect returns the configured SQL dialect
func (c *Config) Dialect() (dialect.Dialect, error) {
	return dialect.Parse(c.Database.Driver)
}

// NamingStrategy returns the configured table naming strategy
func (c *Config) NamingStrategy() schema.NamingStrategy {
	return schema.NamingStrategy{
		TablePrefix:  c.Naming.TablePrefix,
		PluralTables: c.Naming.PluralTables,
	}
}

// Load reads path, or orm.yaml in the working directory when path is
// empty. A missing default file is not an error; a missing explicit one is.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "orm.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("log.slow_threshold", 200*time.Millisecond)
	v.SetDefault("naming.table_prefix", "")
	v.SetDefault("naming.plural_tables", false)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("orm")
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
		cfg.Database.DSN = url
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if _, err := c.Dialect(); err != nil {
		return fmt.Errorf("database.driver: %w", err)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn must not be empty")
	}
	if c.Log.SlowThreshold < 0 {
		return fmt.Errorf("log.slow_threshold must not be negative, got: %s", c.Log.SlowThreshold)
	}
	return nil
}
