// Package config loads application configuration from a YAML file and
// environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Log      LogConfig      `koanf:"log"`
	CORS     CORSConfig     `koanf:"cors"`
	Database DatabaseConfig `koanf:"database"`
	SMTP     SMTPConfig     `koanf:"smtp"`
	Queue    QueueConfig    `koanf:"queue"`
	Kafka    KafkaConfig    `koanf:"kafka"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	MigrationsPath  string        `koanf:"migrations_path"`
}

// SMTPConfig holds outbound email configuration.
type SMTPConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Host        string `koanf:"host"`
	Port        int    `koanf:"port"`
	Username    string `koanf:"username"`
	Password    string `koanf:"password"`
	FromAddress string `koanf:"from_address"`
	FromName    string `koanf:"from_name"`
}

// QueueConfig holds email queue processing configuration.
type QueueConfig struct {
	DispatchInterval time.Duration `koanf:"dispatch_interval"`
	RetryInterval    time.Duration `koanf:"retry_interval"`
	CleanupInterval  time.Duration `koanf:"cleanup_interval"`
	StuckGrace       time.Duration `koanf:"stuck_grace"`
	BatchSize        int           `koanf:"batch_size"`
	MaxRetries       int           `koanf:"max_retries"`
	MaxInFlight      int           `koanf:"max_in_flight"`
	SendsPerSecond   float64       `koanf:"sends_per_second"`
	Retention        time.Duration `koanf:"retention"`
	LoginURL         string        `koanf:"login_url"`
}

// KafkaConfig holds event publishing configuration.
type KafkaConfig struct {
	Enabled bool     `koanf:"enabled"`
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
}

// Load reads configuration from the given YAML file (optional) and
// CHAKRA_-prefixed environment variables. Environment variables override
// file values: CHAKRA_DATABASE_URL maps to database.url.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	cfg := defaultConfig()

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// Sections are one level deep and leaf keys are snake_case, so only
	// the first underscore separates section from key:
	// CHAKRA_QUEUE_MAX_RETRIES -> queue.max_retries.
	err := k.Load(env.Provider("CHAKRA_", ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, "CHAKRA_"))
		return strings.Replace(key, "_", ".", 1)
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
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
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
			MigrationsPath:  "migrations",
		},
		SMTP: SMTPConfig{
			Port:     587,
			FromName: "ChakraERP",
		},
		Queue: QueueConfig{
			DispatchInterval: 30 * time.Second,
			RetryInterval:    5 * time.Minute,
			CleanupInterval:  24 * time.Hour,
			StuckGrace:       10 * time.Minute,
			BatchSize:        100,
			MaxRetries:       3,
			MaxInFlight:      5,
			SendsPerSecond:   10,
			Retention:        30 * 24 * time.Hour,
			LoginURL:         "https://app.chakraerp.com/login",
		},
		Kafka: KafkaConfig{
			Topic: "email-events",
		},
	}
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.Queue.BatchSize <= 0 {
		return fmt.Errorf("queue.batch_size must be positive")
	}
	if c.Queue.MaxRetries < 0 {
		return fmt.Errorf("queue.max_retries must not be negative")
	}
	return nil
}
