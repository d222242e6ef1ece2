package infra

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL"`
	PGHost      string `env:"PGHOST" envDefault:"localhost"`
	PGPort      int    `env:"PGPORT" envDefault:"5432"`
	PGUser      string `env:"PGUSER" envDefault:"casino"`
	PGPassword  string `env:"PGPASSWORD" envDefault:"casino"`
	PGDatabase  string `env:"PGDATABASE" envDefault:"casino"`

	// Shared secrets for the two signature directions
	CasinoSecret   string `env:"CASINO_SECRET"`
	ProviderSecret string `env:"PROVIDER_SECRET"`

	// Operator auth for the launch endpoint
	JWTSecret string `env:"JWT_SECRET"`

	// Server
	ServerPort int `env:"SERVER_PORT" envDefault:"4000"`

	// Kafka
	KafkaBrokers string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled bool   `env:"KAFKA_ENABLED" envDefault:"false"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`
}

// LoadConfig parses environment variables into a Config struct.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate rejects configuration that must not reach production.
// Set ALLOW_INSECURE_DEFAULTS=true to bypass (local dev only).
func (c *Config) Validate() error {
	if c.AllowInsecureDefaults {
		return nil
	}
	if c.CasinoSecret == "" {
		return fmt.Errorf("CASINO_SECRET is not set; outbound launch calls cannot be signed")
	}
	if c.ProviderSecret == "" {
		return fmt.Errorf("PROVIDER_SECRET is not set; inbound callbacks cannot be verified")
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET is too short (%d chars); minimum 32 characters required", len(c.JWTSecret))
	}
	return nil
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}
