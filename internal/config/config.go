// Package config loads service configuration from environment variables
// (with an optional .env file) via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig
	SMTP      SMTPConfig
	Secrets   SecretsConfig
	Scheduler SchedulerConfig
	Logger    LoggerConfig
	Metrics   MetricsConfig
}

// DatabaseConfig holds PostgreSQL configuration. The password is resolved
// through the secret manager at startup, not read from the environment
// directly.
type DatabaseConfig struct {
	Host               string
	Port               int
	User               string
	PasswordSecretName string
	Database           string
	SSLMode            string
	MaxConns           int32
	MinConns           int32
}

// SMTPConfig holds outbound mail configuration
type SMTPConfig struct {
	Host               string
	Port               int
	Username           string
	PasswordSecretName string
	From               string
	Timeout            time.Duration
}

// SecretsConfig selects the secret backend: "env", "aws" or "vault"
type SecretsConfig struct {
	Backend string

	// env backend
	EnvPrefix string

	// aws backend
	AWSRegion   string
	AWSProfile  string
	AWSEndpoint string

	// vault backend
	VaultAddress   string
	VaultToken     string
	VaultMountPath string
}

// SchedulerConfig holds the cron expressions and batch limits for the
// periodic jobs
type SchedulerConfig struct {
	SweeperCron    string
	DispatcherCron string
	RetryCron      string

	DispatcherBatchSize int32
	SweeperBatchSize    int32
	RetryBatchSize      int32
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string // debug, info, warn, error
	Development bool
}

// MetricsConfig holds the observability HTTP server configuration
type MetricsConfig struct {
	Port int
}

// Load reads configuration from environment variables, with an optional
// .env file in the given path for local development.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.AddConfigPath(path)
	v.SetConfigName(".env")
	v.SetConfigType("env")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)
	bindEnv(v)

	// The .env file is optional; environment variables alone are fine.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:               v.GetString("DB_HOST"),
			Port:               v.GetInt("DB_PORT"),
			User:               v.GetString("DB_USER"),
			PasswordSecretName: v.GetString("DB_PASSWORD_SECRET"),
			Database:           v.GetString("DB_NAME"),
			SSLMode:            v.GetString("DB_SSL_MODE"),
			MaxConns:           v.GetInt32("DB_MAX_CONNS"),
			MinConns:           v.GetInt32("DB_MIN_CONNS"),
		},
		SMTP: SMTPConfig{
			Host:               v.GetString("SMTP_HOST"),
			Port:               v.GetInt("SMTP_PORT"),
			Username:           v.GetString("SMTP_USERNAME"),
			PasswordSecretName: v.GetString("SMTP_PASSWORD_SECRET"),
			From:               v.GetString("SMTP_FROM"),
			Timeout:            v.GetDuration("SMTP_TIMEOUT"),
		},
		Secrets: SecretsConfig{
			Backend:        v.GetString("SECRETS_BACKEND"),
			EnvPrefix:      v.GetString("SECRETS_ENV_PREFIX"),
			AWSRegion:      v.GetString("SECRETS_AWS_REGION"),
			AWSProfile:     v.GetString("SECRETS_AWS_PROFILE"),
			AWSEndpoint:    v.GetString("SECRETS_AWS_ENDPOINT"),
			VaultAddress:   v.GetString("SECRETS_VAULT_ADDRESS"),
			VaultToken:     v.GetString("SECRETS_VAULT_TOKEN"),
			VaultMountPath: v.GetString("SECRETS_VAULT_MOUNT_PATH"),
		},
		Scheduler: SchedulerConfig{
			SweeperCron:         v.GetString("SWEEPER_CRON"),
			DispatcherCron:      v.GetString("DISPATCHER_CRON"),
			RetryCron:           v.GetString("RETRY_CRON"),
			DispatcherBatchSize: v.GetInt32("DISPATCHER_BATCH_SIZE"),
			SweeperBatchSize:    v.GetInt32("SWEEPER_BATCH_SIZE"),
			RetryBatchSize:      v.GetInt32("RETRY_BATCH_SIZE"),
		},
		Logger: LoggerConfig{
			Level:       v.GetString("LOG_LEVEL"),
			Development: v.GetBool("LOG_DEVELOPMENT"),
		},
		Metrics: MetricsConfig{
			Port: v.GetInt("METRICS_PORT"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD_SECRET", "reminder-service/db/password")
	v.SetDefault("DB_NAME", "reminder_service")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_CONNS", 25)
	v.SetDefault("DB_MIN_CONNS", 5)

	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_PASSWORD_SECRET", "reminder-service/smtp/password")
	v.SetDefault("SMTP_TIMEOUT", "15s")

	v.SetDefault("SECRETS_BACKEND", "env")
	v.SetDefault("SECRETS_ENV_PREFIX", "REMINDER_SECRET")
	v.SetDefault("SECRETS_VAULT_MOUNT_PATH", "secret")

	v.SetDefault("SWEEPER_CRON", "0 3 * * *")
	v.SetDefault("DISPATCHER_CRON", "* * * * *")
	v.SetDefault("RETRY_CRON", "*/5 * * * *")
	v.SetDefault("DISPATCHER_BATCH_SIZE", 500)
	v.SetDefault("SWEEPER_BATCH_SIZE", 1000)
	v.SetDefault("RETRY_BATCH_SIZE", 50)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_DEVELOPMENT", false)

	v.SetDefault("METRICS_PORT", 9090)
}

func bindEnv(v *viper.Viper) {
	keys := []string{
		"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD_SECRET", "DB_NAME",
		"DB_SSL_MODE", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD_SECRET",
		"SMTP_FROM", "SMTP_TIMEOUT",
		"SECRETS_BACKEND", "SECRETS_ENV_PREFIX",
		"SECRETS_AWS_REGION", "SECRETS_AWS_PROFILE", "SECRETS_AWS_ENDPOINT",
		"SECRETS_VAULT_ADDRESS", "SECRETS_VAULT_TOKEN", "SECRETS_VAULT_MOUNT_PATH",
		"SWEEPER_CRON", "DISPATCHER_CRON", "RETRY_CRON",
		"DISPATCHER_BATCH_SIZE", "SWEEPER_BATCH_SIZE", "RETRY_BATCH_SIZE",
		"LOG_LEVEL", "LOG_DEVELOPMENT", "METRICS_PORT",
	}
	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

func (c *Config) validate() error {
	switch c.Secrets.Backend {
	case "env", "aws", "vault":
	default:
		return fmt.Errorf("SECRETS_BACKEND must be one of env, aws, vault; got %q", c.Secrets.Backend)
	}
	if c.Secrets.Backend == "aws" && c.Secrets.AWSRegion == "" {
		return fmt.Errorf("SECRETS_AWS_REGION is required for the aws secret backend")
	}
	if c.Secrets.Backend == "vault" && c.Secrets.VaultAddress == "" {
		return fmt.Errorf("SECRETS_VAULT_ADDRESS is required for the vault secret backend")
	}
	if c.SMTP.Host == "" {
		return fmt.Errorf("SMTP_HOST is required")
	}
	if c.SMTP.From == "" {
		return fmt.Errorf("SMTP_FROM is required")
	}
	if c.Scheduler.DispatcherBatchSize <= 0 || c.Scheduler.SweeperBatchSize <= 0 || c.Scheduler.RetryBatchSize <= 0 {
		return fmt.Errorf("batch sizes must be positive")
	}
	return nil
}

// ConnectionString returns the PostgreSQL connection string once the
// password has been resolved
func (c *DatabaseConfig) ConnectionString(password string) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, password, c.Database, c.SSLMode,
	)
}
