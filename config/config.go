/*
Package config loads the service configuration.

PRECEDENCE:
  environment > config file > defaults

ENVIRONMENT:
  Every key can be set as POINTS_<SECTION>_<KEY>, e.g. POINTS_DB_PATH or
  POINTS_LEDGER_KEY_POLICY. ADMIN_PIN and PORT are also honoured.

FILE:
  Optional YAML. Without an explicit path, ./config.yaml and
  ./config/config.yaml are tried; a missing file is not an error.
*/
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/warp/point-ledger/ledger"
	"github.com/warp/point-ledger/logging"
)

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	DB     DBConfig     `mapstructure:"db"`
	Ledger LedgerConfig `mapstructure:"ledger"`
	Auth   AuthConfig   `mapstructure:"auth"`
	Backup BackupConfig `mapstructure:"backup"`
	Log    LogConfig    `mapstructure:"log"`
	Seed   SeedConfig   `mapstructure:"seed"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port" validate:"min=1,max=65535"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DBConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

type LedgerConfig struct {
	KeyPolicy string `mapstructure:"key_policy" validate:"oneof=daily shift"`
}

// Policy returns the validated key policy.
func (c LedgerConfig) Policy() ledger.KeyPolicy {
	p, err := ledger.ParseKeyPolicy(c.KeyPolicy)
	if err != nil {
		return ledger.KeyDaily
	}
	return p
}

type AuthConfig struct {
	AdminPIN     string        `mapstructure:"admin_pin" validate:"required"`
	ViewPassword string        `mapstructure:"view_password"`
	TokenSecret  string        `mapstructure:"token_secret"`
	TokenTTL     time.Duration `mapstructure:"token_ttl" validate:"min=1m"`
}

type BackupConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Path     string        `mapstructure:"path" validate:"required_if=Enabled true"`
	Interval time.Duration `mapstructure:"interval" validate:"min=1m"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

// Logging converts to the logging package's config.
func (c LogConfig) Logging() logging.Config {
	return logging.Config{Level: c.Level, Format: c.Format}
}

type SeedConfig struct {
	File string `mapstructure:"file"`
}

var validate = validator.New()

// Load reads configuration from path (optional), the environment and
// defaults, then validates it.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors.allowed_origins", []string{"*"})

	v.SetDefault("db.path", "./data/app.db")

	v.SetDefault("ledger.key_policy", string(ledger.KeyDaily))

	v.SetDefault("auth.admin_pin", "1234")
	v.SetDefault("auth.view_password", "")
	v.SetDefault("auth.token_secret", "")
	v.SetDefault("auth.token_ttl", "12h")

	v.SetDefault("backup.enabled", true)
	v.SetDefault("backup.path", "./data/backup/records_latest.csv")
	v.SetDefault("backup.interval", "1h")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("seed.file", "")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("POINTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Legacy variable names.
	_ = v.BindEnv("auth.admin_pin", "POINTS_AUTH_ADMIN_PIN", "ADMIN_PIN")
	_ = v.BindEnv("server.port", "POINTS_SERVER_PORT", "PORT")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs the struct rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
