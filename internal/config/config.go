// Package config provides application configuration loading.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	CORS     CORSConfig     `koanf:"cors"`
	JWT      JWTConfig      `koanf:"jwt"`
	Alerts   AlertsConfig   `koanf:"alerts"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// DatabaseConfig contains PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// CORSConfig contains CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// JWTConfig contains token settings.
type JWTConfig struct {
	SecretKey           string        `koanf:"secret_key"`
	AccessTokenDuration time.Duration `koanf:"access_token_duration"`
}

// AlertsConfig contains alert dispatch settings.
type AlertsConfig struct {
	Enabled bool `koanf:"enabled"`
	// Offsets is a comma-separated list of day-offsets before renewal at
	// which alerts fire. Invalid values fall back to the built-in default.
	Offsets  string         `koanf:"offsets"`
	Interval time.Duration  `koanf:"interval"`
	Email    EmailConfig    `koanf:"email"`
	WhatsApp WhatsAppConfig `koanf:"whatsapp"`
}

// EmailConfig contains email transport settings.
type EmailConfig struct {
	Enabled      bool      `koanf:"enabled"`
	SMTPHost     string    `koanf:"smtp_host"`
	SMTPPort     int       `koanf:"smtp_port"`
	SMTPUser     string    `koanf:"smtp_user"`
	SMTPPassword string    `koanf:"smtp_password"`
	FromAddress  string    `koanf:"from_address"`
	RateLimit    float64   `koanf:"rate_limit"`
	SES          SESConfig `koanf:"ses"`
}

// SESConfig contains the SES fallback provider settings.
type SESConfig struct {
	Enabled         bool   `koanf:"enabled"`
	Region          string `koanf:"region"`
	AccessKeyID     string `koanf:"access_key_id"`
	SecretAccessKey string `koanf:"secret_access_key"`
}

// WhatsAppConfig contains whatsapp transport settings.
type WhatsAppConfig struct {
	Enabled bool `koanf:"enabled"`
}

// envPrefix is stripped from environment variables before mapping them onto
// config keys. Double underscore separates nesting levels:
// SUBWATCH_ALERTS__OFFSETS -> alerts.offsets.
const envPrefix = "SUBWATCH_"

// Load reads configuration from an optional YAML file and the environment.
// Environment variables override file values.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := defaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.JWT.SecretKey == "" {
		return nil, fmt.Errorf("jwt.secret_key is required")
	}
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("database.url is required")
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		JWT: JWTConfig{
			AccessTokenDuration: 7 * 24 * time.Hour,
		},
		Alerts: AlertsConfig{
			Enabled:  true,
			Interval: 24 * time.Hour,
			Email: EmailConfig{
				SMTPPort:  587,
				RateLimit: 1,
			},
		},
	}
}
