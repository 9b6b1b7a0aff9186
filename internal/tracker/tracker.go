// Package tracker runs the per-trip location state machine: awaiting_driver
// until a driver reports, driver_active while positions stream, arrived once a
// report matches the user's anchor location. Transitions never move backward.
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/example/trip-tracking/internal/cache"
	"github.com/example/trip-tracking/internal/events"
	"github.com/example/trip-tracking/internal/ingest"
	"github.com/example/trip-tracking/internal/models"
	"github.com/example/trip-tracking/internal/observability"
	"github.com/example/trip-tracking/internal/relay"
	"github.com/example/trip-tracking/internal/session"
	"github.com/example/trip-tracking/internal/storage"
)

// ErrInvalidLocation rejects a report whose lat/lng are missing or non-numeric.
var ErrInvalidLocation = events.ErrInvalidLocation

// ErrTripUnavailable is returned when the trip record cannot be read or the
// arrival transition cannot be persisted. Nothing is published in that case.
var ErrTripUnavailable = errors.New("failed to update location")

// ErrPublishFailed is returned when the relay rejected the location publish.
// The connection stays usable; the next report simply tries again.
var ErrPublishFailed = errors.New("failed to update location")

// AuditSink receives a copy of every accepted position report. Optional.
type AuditSink interface {
	PublishLocation(rec ingest.LocationRecord) error
}

// Tracker handles update-location reports from driver sessions.
type Tracker struct {
	store      storage.TripStore
	relay      relay.Relay
	cache      cache.LocationCache
	audit      AuditSink
	logger     *slog.Logger
	instanceID string
}

func New(store storage.TripStore, rl relay.Relay, lc cache.LocationCache, audit AuditSink, logger *slog.Logger, instanceID string) *Tracker {
	return &Tracker{store: store, relay: rl, cache: lc, audit: audit, logger: logger, instanceID: instanceID}
}

// UpdateLocation processes one position report from a session. Reports from
// sessions that are not admitted drivers are dropped without error: stale
// clients keep sending after a disconnect race and there is nothing useful to
// tell them. An exact match against the trip's anchor publishes DRIVER_REACHED
// (again on every matching report, deliberately not deduplicated); anything
// else broadcasts the raw position and refreshes the advisory cache.
func (t *Tracker) UpdateLocation(ctx context.Context, sess *session.Session, driverID string, rawLoc json.RawMessage) error {
	loc, err := events.ParseLocation(rawLoc)
	if err != nil {
		return ErrInvalidLocation
	}
	role, tripID := sess.Binding()
	if role != models.RoleDriver || tripID == "" {
		return nil
	}

	trip, err := t.store.FindByTripID(ctx, tripID)
	if err != nil {
		t.logger.Error("trip fetch failed", "trip_id", tripID, "error", err)
		return ErrTripUnavailable
	}

	now := time.Now().UnixMilli()

	if trip.UserLocation != nil && loc == *trip.UserLocation {
		return t.arrive(ctx, trip, driverID, now)
	}

	payload, _ := json.Marshal(events.DriverLocation{Location: loc, Timestamp: now, ServerID: t.instanceID})
	err = t.relay.Publish(ctx, relay.Message{
		Channel:          relay.KindLocation,
		TripID:           tripID,
		Payload:          payload,
		Timestamp:        now,
		OriginInstanceID: t.instanceID,
	})
	if err != nil {
		t.logger.Error("location publish failed", "trip_id", tripID, "driver_id", driverID, "error", err)
		return ErrPublishFailed
	}
	observability.LocationUpdatesTotal.Inc()

	if err := t.cache.SetCurrent(ctx, driverID, cache.Entry{Location: loc, Timestamp: now}); err != nil {
		// advisory only; the broadcast already went out
		t.logger.Warn("location cache write failed", "driver_id", driverID, "error", err)
	}
	if t.audit != nil {
		if err := t.audit.PublishLocation(ingest.LocationRecord{TripID: tripID, DriverID: driverID, Location: loc, Timestamp: now, ServerID: t.instanceID}); err != nil {
			t.logger.Warn("location audit publish failed", "driver_id", driverID, "error", err)
		}
	}
	return nil
}

// arrive persists the reached status (first crossing only) and publishes
// DRIVER_REACHED. The matching report itself is not broadcast as a location.
func (t *Tracker) arrive(ctx context.Context, trip *models.Trip, driverID string, now int64) error {
	if trip.Status != models.StatusReached && trip.Status != models.StatusClosed {
		trip.Status = models.StatusReached
		if err := t.store.Save(ctx, trip); err != nil {
			t.logger.Error("arrival persist failed", "trip_id", trip.TripID, "error", err)
			return ErrTripUnavailable
		}
	}

	payload, _ := json.Marshal(events.Notification{
		Type:      events.TypeDriverReached,
		TripID:    trip.TripID,
		DriverID:  driverID,
		Message:   "Driver has reached",
		Timestamp: now,
	})
	err := t.relay.Publish(ctx, relay.Message{
		Channel:          relay.KindNotification,
		TripID:           trip.TripID,
		Payload:          payload,
		Timestamp:        now,
		OriginInstanceID: t.instanceID,
	})
	if err != nil {
		t.logger.Error("arrival publish failed", "trip_id", trip.TripID, "error", err)
		return ErrPublishFailed
	}
	observability.ArrivalsTotal.Inc()
	return nil
}
