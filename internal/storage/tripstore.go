package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/example/trip-tracking/internal/models"
)

var (
	// ErrNotFound is returned by FindByTripID when no trip record exists.
	ErrNotFound = errors.New("trip not found")
	// ErrDuplicate is returned by Create when the trip id is already taken.
	ErrDuplicate = errors.New("trip already exists")
)

// TripStore defines persistence operations for trip records. It is the single
// source of truth for trip state; callers re-fetch per operation and never
// hold a record across operations.
type TripStore interface {
	FindByTripID(ctx context.Context, tripID string) (*models.Trip, error)
	Create(ctx context.Context, t *models.Trip) error
	Save(ctx context.Context, t *models.Trip) error
}

// MemoryStore is the fallback when no PG_DSN is configured, and the store used
// in tests. Records are deep-copied on the way in and out so callers can never
// alias the stored state.
type MemoryStore struct {
	mu    sync.RWMutex
	trips map[string]*models.Trip
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{trips: make(map[string]*models.Trip)}
}

func (m *MemoryStore) FindByTripID(ctx context.Context, tripID string) (*models.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trips[tripID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyTrip(t), nil
}

func (m *MemoryStore) Create(ctx context.Context, t *models.Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trips[t.TripID]; ok {
		return ErrDuplicate
	}
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	m.trips[t.TripID] = copyTrip(t)
	return nil
}

func (m *MemoryStore) Save(ctx context.Context, t *models.Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.UpdatedAt = time.Now()
	if prev, ok := m.trips[t.TripID]; ok {
		t.CreatedAt = prev.CreatedAt
	}
	m.trips[t.TripID] = copyTrip(t)
	return nil
}

func copyTrip(t *models.Trip) *models.Trip {
	out := *t
	if t.UserLocation != nil {
		loc := *t.UserLocation
		out.UserLocation = &loc
	}
	if t.CurrentDriverLocation != nil {
		loc := *t.CurrentDriverLocation
		out.CurrentDriverLocation = &loc
	}
	return &out
}
