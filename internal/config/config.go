package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`

	ChapaSecretKey string `env:"CHAPA_SECRET_KEY,required" validate:"required"`
	ChapaBaseURL   string `env:"CHAPA_BASE_URL" envDefault:"https://api.chapa.co/v1" validate:"required,url"`

	// CallbackBaseURL is where Chapa sends the shopper back after checkout.
	CallbackBaseURL string `env:"CALLBACK_BASE_URL,required" validate:"required,url"`

	JWTSecret string `env:"JWT_SECRET,required" validate:"required,min=32"`

	// PricingFile points at the YAML pricing policy. Empty means built-in
	// defaults.
	PricingFile string `env:"PRICING_FILE"`

	CacheProvider         string `env:"CACHE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	RedisConnectionString string `env:"REDIS_CONNECTION_STRING" envDefault:"redis://localhost:6379/0" validate:"required_if=CacheProvider redis"`

	EmailProvider string `env:"EMAIL_PROVIDER" validate:"omitempty,oneof=resend"`
	ResendAPIKey  string `env:"RESEND_API_KEY" validate:"required_if=EmailProvider resend"`
	EmailFrom     string `env:"EMAIL_FROM" validate:"required_if=EmailProvider resend,omitempty,email"`

	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"text" validate:"omitempty,oneof=text json"`
	Port      string     `env:"PORT" envDefault:"8080"`
}

var configValidator = validator.New()

func Load() (*Config, error) {
	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if err := configValidator.Struct(c); err != nil {
		return err
	}

	callbackURL := strings.TrimSpace(c.CallbackBaseURL)
	parsed, err := url.Parse(callbackURL)
	if err != nil || parsed.Hostname() == "" {
		return fmt.Errorf("CALLBACK_BASE_URL must be a valid absolute URL")
	}
	if !isLocalHost(parsed.Hostname()) && !strings.EqualFold(parsed.Scheme, "https") {
		return fmt.Errorf("CALLBACK_BASE_URL must use https outside local development")
	}

	return nil
}

func isLocalHost(host string) bool {
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}
