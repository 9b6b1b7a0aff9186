// Package cache holds each driver's last known position independent of any
// live connection. Entries are advisory only: trip logic never reads them, and
// they expire on their own. They exist for recovery and debugging reads.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/example/trip-tracking/internal/models"
)

// TTL is how long a driver's last known position outlives its write.
const TTL = 300 * time.Second

// ErrNotFound is returned when no unexpired entry exists for a driver.
var ErrNotFound = errors.New("no cached location")

// Entry is the cached value for one driver.
type Entry struct {
	Location  models.Location `json:"location"`
	Timestamp int64           `json:"timestamp"`
}

// LocationCache stores a driver's last known position with a fixed TTL.
type LocationCache interface {
	SetCurrent(ctx context.Context, driverID string, e Entry) error
	GetCurrent(ctx context.Context, driverID string) (Entry, error)
}

// Key returns the cache key for a driver's current position.
func Key(driverID string) string { return "driver:" + driverID + ":current" }

// MemoryCache is the in-process fallback used without Redis and in tests.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	e       Entry
	expires time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryCache) SetCurrent(ctx context.Context, driverID string, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[Key(driverID)] = memoryEntry{e: e, expires: m.now().Add(TTL)}
	return nil
}

func (m *MemoryCache) GetCurrent(ctx context.Context, driverID string) (Entry, error) {
	m.mu.RLock()
	me, ok := m.entries[Key(driverID)]
	m.mu.RUnlock()
	if !ok {
		return Entry{}, ErrNotFound
	}
	if m.now().After(me.expires) {
		m.mu.Lock()
		delete(m.entries, Key(driverID))
		m.mu.Unlock()
		return Entry{}, ErrNotFound
	}
	return me.e, nil
}
