package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/trip-tracking/internal/cache"
	"github.com/example/trip-tracking/internal/ingest"
	"github.com/example/trip-tracking/internal/models"
)

// fakeWriter implements CacheWriter for tests
type fakeWriter struct {
	fail  int // number of times to fail before succeeding
	calls int
	last  cache.Entry
}

func (f *fakeWriter) SetCurrent(ctx context.Context, driverID string, e cache.Entry) error {
	f.calls++
	if f.calls <= f.fail {
		return errors.New("cache fail")
	}
	f.last = e
	return nil
}

func TestUpdateCacheWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeWriter{fail: 2}
	rec := ingest.LocationRecord{TripID: "trip-1", DriverID: "d1", Location: models.Location{Lat: 1, Lng: 2}, Timestamp: 42}
	ctx := context.Background()
	start := time.Now()
	if err := updateCacheWithRetry(ctx, f, rec, 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", f.calls)
	}
	if f.last.Location != rec.Location || f.last.Timestamp != 42 {
		t.Fatalf("unexpected entry written: %+v", f.last)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("expected at least one backoff")
	}
}

func TestUpdateCacheWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeWriter{fail: 5}
	rec := ingest.LocationRecord{DriverID: "d1", Location: models.Location{Lat: 1, Lng: 2}}
	if err := updateCacheWithRetry(context.Background(), f, rec, 3, 5*time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
}
