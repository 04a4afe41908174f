package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Port                string        `mapstructure:"PORT"`
	Env                 string        `mapstructure:"ENV"`
	DatabaseURL         string        `mapstructure:"DATABASE_URL"`
	DBMaxConns          int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32         `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir       string        `mapstructure:"MIGRATIONS_DIR"`
	AuthIssuer          string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL         string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience        string        `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey      string        `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins         []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS        float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst      int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout      time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	RefillQueryTimeout  time.Duration `mapstructure:"REFILL_QUERY_TIMEOUT"`
	DispatchWorkers     int           `mapstructure:"DISPATCH_WORKERS"`
	DispatchQueueSize   int           `mapstructure:"DISPATCH_QUEUE_SIZE"`
	DispatchTaskTimeout time.Duration `mapstructure:"DISPATCH_TASK_TIMEOUT"`
	SMTPHost            string        `mapstructure:"SMTP_HOST"`
	SMTPPort            int           `mapstructure:"SMTP_PORT"`
	SMTPUsername        string        `mapstructure:"SMTP_USERNAME"`
	SMTPPassword        string        `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom            string        `mapstructure:"SMTP_FROM"`
}

var envKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "MIGRATIONS_DIR",
	"AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY", "CORS_ORIGINS",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT", "REFILL_QUERY_TIMEOUT",
	"DISPATCH_WORKERS", "DISPATCH_QUEUE_SIZE", "DISPATCH_TASK_TIMEOUT",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_FROM",
}

func Load() (*Config, error) {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("REFILL_QUERY_TIMEOUT", "5s")
	v.SetDefault("DISPATCH_WORKERS", 4)
	v.SetDefault("DISPATCH_QUEUE_SIZE", 256)
	v.SetDefault("DISPATCH_TASK_TIMEOUT", "15s")
	v.SetDefault("SMTP_PORT", 587)

	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Warn().Msg("running in DEVELOPMENT mode: X-User-ID/X-Role headers are trusted without a token")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// SMTPEnabled reports whether outbound mail should go through a real SMTP relay.
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != ""
}

// Validate checks that the configuration is safe to run. Outside development
// either an issuer (JWKS verification) or a shared signing key must be set.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthIssuer == "" && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_ISSUER or AUTH_SIGNING_KEY must be set when ENV=%q", c.Env)
	}
	if c.IsProduction() && c.AuthSigningKey != "" && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 characters in production")
	}
	if c.SMTPEnabled() && c.SMTPFrom == "" {
		return fmt.Errorf("SMTP_FROM is required when SMTP_HOST is set")
	}
	if c.DispatchWorkers <= 0 {
		return fmt.Errorf("DISPATCH_WORKERS must be positive, got %d", c.DispatchWorkers)
	}
	if c.DispatchQueueSize <= 0 {
		return fmt.Errorf("DISPATCH_QUEUE_SIZE must be positive, got %d", c.DispatchQueueSize)
	}
	return nil
}
