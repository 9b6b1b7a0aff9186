package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/trip-tracking/internal/models"
)

func TestMemoryCacheSetGet(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	e := Entry{Location: models.Location{Lat: 1, Lng: 2}, Timestamp: 42}
	if err := c.SetCurrent(ctx, "d1", e); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := c.GetCurrent(ctx, "d1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != e {
		t.Fatalf("got %+v want %+v", got, e)
	}
	if _, err := c.GetCurrent(ctx, "unknown"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	now := time.Now()
	c.now = func() time.Time { return now }
	ctx := context.Background()
	if err := c.SetCurrent(ctx, "d1", Entry{Timestamp: 1}); err != nil {
		t.Fatalf("set: %v", err)
	}
	now = now.Add(TTL + time.Second)
	if _, err := c.GetCurrent(ctx, "d1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestKey(t *testing.T) {
	if k := Key("d1"); k != "driver:d1:current" {
		t.Fatalf("got %q", k)
	}
}
