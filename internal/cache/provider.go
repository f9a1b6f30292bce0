package cache

// Package cache provides short-lived caching for public tracking lookups and
// payment-verification idempotency.

import (
	"context"
	"fmt"
	"time"
)

// Provider defines the interface for the cache backends.
type Provider interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type Config struct {
	Provider              string
	RedisConnectionString string
}

func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "memory", "":
		return NewMemoryProvider()
	case "redis":
		return NewRedisProvider(cfg.RedisConnectionString)
	default:
		return nil, fmt.Errorf("unsupported cache provider: %s", cfg.Provider)
	}
}

// TrackingKey namespaces cached public tracking lookups.
func TrackingKey(trackingNumber string) string {
	return fmt.Sprintf("tracking:%s", trackingNumber)
}

// VerificationKey namespaces processed payment verifications by gateway
// reference, so repeated verify calls stay idempotent.
func VerificationKey(txRef string) string {
	return fmt.Sprintf("verify:%s", txRef)
}
