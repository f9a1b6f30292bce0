package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryProviderRoundTrip(t *testing.T) {
	t.Parallel()

	provider, err := NewMemoryProvider()
	if err != nil {
		t.Fatalf("NewMemoryProvider() error = %v", err)
	}
	ctx := context.Background()

	if err := provider.Set(ctx, TrackingKey("TANA-20260830-1234"), "delivered", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := provider.Get(ctx, TrackingKey("TANA-20260830-1234"))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "delivered" {
		t.Fatalf("Get() = %q, want %q", got, "delivered")
	}
}

func TestMemoryProviderExpiry(t *testing.T) {
	t.Parallel()

	provider, err := NewMemoryProvider()
	if err != nil {
		t.Fatalf("NewMemoryProvider() error = %v", err)
	}
	ctx := context.Background()

	if err := provider.Set(ctx, "expired", "value", -time.Second); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if _, err := provider.Get(ctx, "expired"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryProviderDelete(t *testing.T) {
	t.Parallel()

	provider, err := NewMemoryProvider()
	if err != nil {
		t.Fatalf("NewMemoryProvider() error = %v", err)
	}
	ctx := context.Background()

	if err := provider.Set(ctx, "key", "value", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := provider.Delete(ctx, "key"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := provider.Get(ctx, "key"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
}
