package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the reconciliation engine.
// Configuration can come from a YAML file (config.yaml) or environment
// variables; environment variables override YAML values. Secrets (the
// database password) must only come from environment variables.
type Config struct {
	Env     string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version string `yaml:"-"` // Set at load time, not from config

	// MigrationsPath is the directory containing SQL migrations.
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`

	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string        `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int           `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string        `yaml:"user" env:"PGUSER" env-default:"mdm"`
	Password       string        `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string        `yaml:"database" env:"PGDATABASE" env-default:"reconcile"`
	SSLMode        string        `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32         `yaml:"max_connections" env:"PG_MAX_CONNECTIONS" env-default:"25"`
	ConnLifetime   time.Duration `yaml:"conn_lifetime" env:"PG_CONN_LIFETIME" env-default:"1h"`
	ConnIdleTime   time.Duration `yaml:"conn_idle_time" env:"PG_CONN_IDLE_TIME" env-default:"30m"`
}

// URL builds the connection string for pgx and database/sql.
func (c *DatabaseConfig) URL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   c.Database,
	}
	q := u.Query()
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// RedisConfig holds the optional settings-cache configuration. An empty Host
// disables Redis entirely.
type RedisConfig struct {
	Host        string        `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port        int           `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password    string        `yaml:"-" env:"REDIS_PASSWORD"`
	DB          int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	SettingsTTL time.Duration `yaml:"settings_ttl" env:"REDIS_SETTINGS_TTL" env-default:"60s"`
}

// SchedulerConfig controls the periodic auto-resolution run.
type SchedulerConfig struct {
	Enabled  bool   `yaml:"enabled" env:"AUTO_RESOLVE_ENABLED" env-default:"true"`
	Schedule string `yaml:"schedule" env:"AUTO_RESOLVE_SCHEDULE" env-default:"@every 5m"`
}

// Load reads configuration from config.yaml (if present) and the
// environment.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	return cfg, nil
}
