// Package config loads service settings from the environment, after .env files.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	SequenceBackendDatabase = "database"
	SequenceBackendRedis    = "redis"
)

type HTTPOptions struct {
	Port        string   `env:"PORT" envDefault:"8080"`
	GinMode     string   `env:"GIN_MODE" envDefault:"debug"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://127.0.0.1:5173"`
}

type DatabaseOptions struct {
	Host            string        `env:"DB_HOST" envDefault:"localhost"`
	Port            string        `env:"DB_PORT" envDefault:"5432"`
	User            string        `env:"DB_USER" envDefault:"postgres"`
	Password        string        `env:"DB_PASSWORD" envDefault:"postgres"`
	Name            string        `env:"DB_NAME" envDefault:"postgres"`
	SSLMode         string        `env:"DB_SSLMODE" envDefault:"disable"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	AutoMigrate     bool          `env:"DB_AUTO_MIGRATE" envDefault:"true"`
}

// DSN builds the postgres connection URL.
func (d DatabaseOptions) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type LogOptions struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"` // text or json
}

type DocumentOptions struct {
	StorageDir    string `env:"DOCUMENT_STORAGE_DIR" envDefault:"./storage"`
	MaxUploadSize int64  `env:"DOCUMENT_MAX_UPLOAD_BYTES" envDefault:"10485760"`
	CompanyName   string `env:"DOCUMENT_COMPANY_NAME" envDefault:"P2P Procurement"`
}

type SequenceOptions struct {
	Backend   string `env:"PO_SEQUENCE_BACKEND" envDefault:"database"` // database or redis
	KeyPrefix string `env:"PO_SEQUENCE_KEY_PREFIX" envDefault:"p2p:po_seq:"`
}

type RedisOptions struct {
	URL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
}

type RateLimitOptions struct {
	Enabled bool   `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	Rate    string `env:"RATE_LIMIT_RATE" envDefault:"300-M"`
	Storage string `env:"RATE_LIMIT_STORAGE" envDefault:"memory"` // memory or redis
}

type MetricsOptions struct {
	Enabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
	Path    string `env:"METRICS_PATH" envDefault:"/metrics"`
}

type Config struct {
	HTTP      HTTPOptions
	Database  DatabaseOptions
	Log       LogOptions
	Document  DocumentOptions
	Sequence  SequenceOptions
	Redis     RedisOptions
	RateLimit RateLimitOptions
	Metrics   MetricsOptions
	JWTSecret string `env:"JWT_SECRET" envDefault:"default_super_secret_key"`
}

// Load reads the given .env files, skipping missing ones, then parses the environment.
func Load(envFiles ...string) (*Config, error) {
	existing := make([]string, 0, len(envFiles))
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) > 0 {
		if err := godotenv.Load(existing...); err != nil {
			return nil, fmt.Errorf("load env files: %w", err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Sequence.Backend {
	case SequenceBackendDatabase, SequenceBackendRedis:
	default:
		return fmt.Errorf("PO_SEQUENCE_BACKEND must be %q or %q, got %q",
			SequenceBackendDatabase, SequenceBackendRedis, c.Sequence.Backend)
	}
	switch strings.ToLower(c.RateLimit.Storage) {
	case "memory", "redis":
	default:
		return fmt.Errorf("RATE_LIMIT_STORAGE must be memory or redis, got %q", c.RateLimit.Storage)
	}
	if c.Document.MaxUploadSize <= 0 {
		return fmt.Errorf("DOCUMENT_MAX_UPLOAD_BYTES must be positive")
	}
	return nil
}

// NeedsRedis reports whether any enabled component is configured to use Redis.
func (c *Config) NeedsRedis() bool {
	return c.Sequence.Backend == SequenceBackendRedis ||
		(c.RateLimit.Enabled && strings.EqualFold(c.RateLimit.Storage, "redis"))
}
