package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port                   int    `env:"PORT" envDefault:"8080"`
	DatabaseURL            string `env:"DATABASE_URL,required"`
	RedisURL               string `env:"REDIS_URL,required"`
	VideoAPIKey            string `env:"VIDEO_API_KEY,required"`
	VideoAPIURL            string `env:"VIDEO_API_URL" envDefault:"https://api.daily.co/v1"`
	VideoDomainURL         string `env:"VIDEO_DOMAIN_URL" envDefault:""`
	TokenTTLSeconds        int    `env:"TOKEN_TTL_SECONDS" envDefault:"7200"`
	ProviderMaxAttempts    int    `env:"PROVIDER_MAX_ATTEMPTS" envDefault:"3"`
	ProviderBackoffMillis  int    `env:"PROVIDER_BACKOFF_MS" envDefault:"250"`
	ProviderTimeoutSeconds int    `env:"PROVIDER_TIMEOUT_SECONDS" envDefault:"10"`
	WebhookSecret          string `env:"WEBHOOK_SECRET"`
	CommandTimeoutSeconds  int    `env:"COMMAND_TIMEOUT_SECONDS" envDefault:"10"`
	SessionIdleTTLSeconds  int    `env:"SESSION_IDLE_TTL_SECONDS" envDefault:"1800"`
	RequirePreflight       bool   `env:"REQUIRE_PREFLIGHT" envDefault:"true"`
	LogLevel               string `env:"LOG_LEVEL" envDefault:"info"`
	ClientDir              string `env:"CLIENT_DIR" envDefault:"web"`
	RateLimitPerMin        int    `env:"RATE_LIMIT_PER_MIN" envDefault:"120"`
}

func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLSeconds) * time.Second
}

func (c *Config) ProviderBackoff() time.Duration {
	return time.Duration(c.ProviderBackoffMillis) * time.Millisecond
}

func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutSeconds) * time.Second
}

func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutSeconds) * time.Second
}

func (c *Config) SessionIdleTTL() time.Duration {
	return time.Duration(c.SessionIdleTTLSeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate(isProduction bool) error {
	if strings.TrimSpace(c.VideoAPIKey) == "" {
		return fmt.Errorf("VIDEO_API_KEY must not be blank")
	}
	if c.ProviderMaxAttempts < 1 {
		return fmt.Errorf("PROVIDER_MAX_ATTEMPTS must be at least 1")
	}
	if c.TokenTTLSeconds <= 0 {
		return fmt.Errorf("TOKEN_TTL_SECONDS must be positive")
	}

	if isProduction {
		if c.WebhookSecret == "" {
			log.Warn().Msg("WEBHOOK_SECRET is empty in production: webhook signature verification disabled")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	}

	return nil
}

// Load reads an optional .env file and then parses the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
