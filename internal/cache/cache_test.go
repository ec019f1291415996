package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryProviderExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	provider := NewMemoryProvider()
	provider.now = func() time.Time { return now }
	ctx := context.Background()

	if err := provider.Set(ctx, "token", []byte("abc"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	value, err := provider.Get(ctx, "token")
	if err != nil || string(value) != "abc" {
		t.Fatalf("unexpected get: %q %v", value, err)
	}

	now = now.Add(time.Minute)
	if _, err := provider.Get(ctx, "token"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expiry miss, got %v", err)
	}
}

func TestMemoryProviderCopiesValues(t *testing.T) {
	provider := NewMemoryProvider()
	ctx := context.Background()

	value := []byte("abc")
	_ = provider.Set(ctx, "k", value, 0)
	value[0] = 'z'

	got, _ := provider.Get(ctx, "k")
	if string(got) != "abc" {
		t.Fatalf("stored value aliased caller slice: %q", got)
	}
	got[1] = 'z'
	again, _ := provider.Get(ctx, "k")
	if string(again) != "abc" {
		t.Fatalf("returned value aliased stored slice: %q", again)
	}

	_ = provider.Del(ctx, "k")
	if _, err := provider.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after delete, got %v", err)
	}
}

func TestNoopProvider(t *testing.T) {
	var provider Provider = NoopProvider{}
	ctx := context.Background()
	if err := provider.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := provider.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("noop cache should always miss, got %v", err)
	}
}

func TestNewRedisProviderRequiresAddr(t *testing.T) {
	if _, err := NewRedisProvider(RedisConfig{}); err == nil {
		t.Fatalf("expected error without addr")
	}
}

func TestNewRedisProviderUnreachable(t *testing.T) {
	_, err := NewRedisProvider(RedisConfig{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond, MaxRetries: -1})
	if err == nil {
		t.Fatalf("expected ping failure against a closed port")
	}
}
