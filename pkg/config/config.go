// Package config loads correlator configuration from file and environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the HTTP ingress server.
type ServerConfig struct {
	Host        string `json:"host" yaml:"host" env:"SERVER_HOST"`
	Port        int    `json:"port" yaml:"port" env:"SERVER_PORT"`
	Environment string `json:"environment" yaml:"environment" env:"SERVICE_ENV"`
}

// DatabaseConfig controls the Postgres-backed document and relational stores.
type DatabaseConfig struct {
	Driver          string `json:"driver" yaml:"driver" env:"DATABASE_DRIVER"`
	DSN             string `json:"dsn" yaml:"dsn" env:"DATABASE_DSN"`
	Host            string `json:"host" yaml:"host" env:"DATABASE_HOST"`
	Port            int    `json:"port" yaml:"port" env:"DATABASE_PORT"`
	User            string `json:"user" yaml:"user" env:"DATABASE_USER"`
	Password        string `json:"password" yaml:"password" env:"DATABASE_PASSWORD"`
	Name            string `json:"name" yaml:"name" env:"DATABASE_NAME"`
	SSLMode         string `json:"sslmode" yaml:"sslmode" env:"DATABASE_SSLMODE"`
	MaxOpenConns    int    `json:"max_open_conns" yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `json:"max_idle_conns" yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `json:"conn_max_lifetime" yaml:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
	MigrateOnStart  bool   `json:"migrate_on_start" yaml:"migrate_on_start" env:"DATABASE_MIGRATE_ON_START"`
}

// ConnectionString builds a libpq connection string from host parameters.
func (c DatabaseConfig) ConnectionString() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" env:"LOG_LEVEL"`
	Format string `json:"format" yaml:"format" env:"LOG_FORMAT"`
}

// QueueConfig controls the Redis-backed delayed task queue and scheduler locks.
type QueueConfig struct {
	RedisAddr     string `json:"redis_addr" yaml:"redis_addr" env:"QUEUE_REDIS_ADDR"`
	RedisPassword string `json:"redis_password" yaml:"redis_password" env:"QUEUE_REDIS_PASSWORD"`
	RedisDB       int    `json:"redis_db" yaml:"redis_db" env:"QUEUE_REDIS_DB"`
	PollInterval  int    `json:"poll_interval_ms" yaml:"poll_interval_ms" env:"QUEUE_POLL_INTERVAL_MS"`
	WorkerCount   int    `json:"worker_count" yaml:"worker_count" env:"QUEUE_WORKER_COUNT"`
}

// TicketConfig controls the ITSM ticket client.
type TicketConfig struct {
	BaseURL    string `json:"base_url" yaml:"base_url" env:"ITSM_BASE_URL"`
	AppToken   string `json:"app_token" yaml:"app_token" env:"ITSM_APP_TOKEN"`
	UserToken  string `json:"user_token" yaml:"user_token" env:"ITSM_USER_TOKEN"`
	EntityUID  string `json:"entity_uid" yaml:"entity_uid" env:"ITSM_ENTITY_UID"`
	TimeoutSec int    `json:"timeout_sec" yaml:"timeout_sec" env:"ITSM_TIMEOUT_SEC"`
}

// IngressConfig controls inbound HTTP/SNMP ingest behavior.
type IngressConfig struct {
	CSVFields       []string `json:"csv_fields" yaml:"csv_fields"`
	RateLimitPerSec float64  `json:"rate_limit_per_sec" yaml:"rate_limit_per_sec" env:"INGRESS_RATE_LIMIT_PER_SEC"`
	RateLimitBurst  int      `json:"rate_limit_burst" yaml:"rate_limit_burst" env:"INGRESS_RATE_LIMIT_BURST"`
	SNMPBindAddr    string   `json:"snmp_bind_addr" yaml:"snmp_bind_addr" env:"SNMP_BIND_ADDR"`
	SNMPCommunity   string   `json:"snmp_community" yaml:"snmp_community" env:"SNMP_COMMUNITY"`
}

// PurgeConfig controls the periodic housekeeping jobs.
type PurgeConfig struct {
	RetainDays     int `json:"retain_days" yaml:"retain_days" env:"PURGE_RETAIN_DAYS"`
	LockLeaseSec   int `json:"lock_lease_sec" yaml:"lock_lease_sec" env:"PURGE_LOCK_LEASE_SEC"`
	IntervalMinute int `json:"interval_minutes" yaml:"interval_minutes" env:"PURGE_INTERVAL_MINUTES"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Database DatabaseConfig `json:"database" yaml:"database"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
	Queue    QueueConfig    `json:"queue" yaml:"queue"`
	Ticket   TicketConfig   `json:"ticket" yaml:"ticket"`
	Ingress  IngressConfig  `json:"ingress" yaml:"ingress"`
	Purge    PurgeConfig    `json:"purge" yaml:"purge"`
}

// New returns a configuration populated with defaults.
func New() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080, Environment: "prod"},
		Database: DatabaseConfig{
			Driver:          "postgres",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
			MigrateOnStart:  true,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Queue: QueueConfig{
			RedisAddr:    "127.0.0.1:6379",
			PollInterval: 500,
			WorkerCount:  4,
		},
		Ticket: TicketConfig{TimeoutSec: 30},
		Ingress: IngressConfig{
			RateLimitPerSec: 50,
			RateLimitBurst:  100,
			SNMPBindAddr:    "0.0.0.0:1162",
			SNMPCommunity:   "public",
		},
		Purge: PurgeConfig{
			RetainDays:     30,
			LockLeaseSec:   180,
			IntervalMinute: 60,
		},
	}
}

// Load loads configuration from an optional YAML file and environment
// variables, in that order, with environment variables taking precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	} else {
		_ = loadFromFile("configs/config.yaml", cfg)
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	applyDatabaseURLOverride(cfg)
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyDatabaseURLOverride lets DATABASE_URL override a file-based DSN, the
// same convenience the appserver entrypoint offers.
func applyDatabaseURLOverride(cfg *Config) {
	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		cfg.Database.DSN = dsn
	}
}
