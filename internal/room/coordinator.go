// Package room enforces trip-membership invariants: at most one driver per
// trip, a fixed user anchor location, and relay subscriptions that follow
// local membership. Admission is atomic with respect to persistence: a session
// is never observable in a room whose trip record failed to persist.
package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/trip-tracking/internal/events"
	"github.com/example/trip-tracking/internal/models"
	"github.com/example/trip-tracking/internal/observability"
	"github.com/example/trip-tracking/internal/relay"
	"github.com/example/trip-tracking/internal/session"
	"github.com/example/trip-tracking/internal/storage"
)

// Config carries the coordinator's policy knobs.
type Config struct {
	InstanceID string

	// DriverCreatesTrip: when false, a driver may only join a trip a user has
	// already created; when true, a driver join creates the record implicitly.
	DriverCreatesTrip bool

	// DriverUnsubscribeOnDisconnect tears down this instance's channel
	// subscriptions when the last local member leaves behind a departing
	// driver. Off by default to match the long-standing behavior.
	DriverUnsubscribeOnDisconnect bool
}

// Coordinator performs role-specific admission into trip rooms and reverses it
// on disconnect. All collaborators are injected; there are no package-level
// singletons.
type Coordinator struct {
	store    storage.TripStore
	relay    relay.Relay
	registry *session.Registry
	rooms    *session.Rooms
	subs     *subscriptions
	logger   *slog.Logger
	cfg      Config

	// per-trip admission locks: two connections joining the same trip as
	// driver on this instance serialize here. Cross-instance races are not
	// preventable at this layer.
	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func NewCoordinator(store storage.TripStore, rl relay.Relay, reg *session.Registry, rooms *session.Rooms, logger *slog.Logger, cfg Config) *Coordinator {
	return &Coordinator{
		store:    store,
		relay:    rl,
		registry: reg,
		rooms:    rooms,
		subs:     newSubscriptions(),
		logger:   logger,
		cfg:      cfg,
		locks:    make(map[string]*sync.Mutex),
	}
}

// JoinRoom admits a session into the trip's room. On success the session is
// bound, the local index updated, this instance subscribed to the trip's relay
// channels, and (for drivers) a DRIVER_JOINED notification published. On any
// reject the session remains unbound and no subscription is taken.
func (c *Coordinator) JoinRoom(ctx context.Context, sess *session.Session, tripID string, role models.Role, participantID string, loc *models.Location) error {
	if tripID == "" || !role.Valid() || sess.Joined() {
		return ErrInvalidRequest
	}

	lock := c.tripLock(tripID)
	lock.Lock()
	defer lock.Unlock()

	var err error
	switch role {
	case models.RoleDriver:
		err = c.admitDriver(ctx, sess, tripID, participantID, loc)
	case models.RoleUser:
		err = c.admitUser(ctx, sess, tripID, participantID, loc)
	}
	if err != nil {
		observability.JoinRejectsTotal.WithLabelValues(Reason(err)).Inc()
		return err
	}
	observability.JoinsTotal.WithLabelValues(string(role)).Inc()
	c.logger.Info("joined room", "trip_id", tripID, "role", role, "participant_id", participantID, "conn_id", sess.ConnID)
	return nil
}

func (c *Coordinator) admitDriver(ctx context.Context, sess *session.Session, tripID, driverID string, loc *models.Location) error {
	if c.rooms.HasDriver(tripID) {
		return ErrDriverExists
	}

	trip, err := c.store.FindByTripID(ctx, tripID)
	created := false
	switch {
	case errors.Is(err, storage.ErrNotFound):
		if !c.cfg.DriverCreatesTrip {
			return ErrNoSuchTrip
		}
		trip = &models.Trip{TripID: tripID, Status: models.StatusPending}
		created = true
	case err != nil:
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	// Re-joining the same driver id is idempotent; a second distinct driver
	// is rejected. The store write is the only cross-instance linearization
	// point this design has.
	if trip.DriverID != "" && trip.DriverID != driverID {
		return ErrDriverExists
	}
	trip.DriverID = driverID
	if loc != nil {
		l := *loc
		trip.CurrentDriverLocation = &l
	}
	if trip.Status == models.StatusPending {
		trip.Status = models.StatusDriverJoined
	}

	if created {
		err = c.store.Create(ctx, trip)
		if errors.Is(err, storage.ErrDuplicate) {
			// lost a concurrent create on another instance; re-check the winner
			existing, ferr := c.store.FindByTripID(ctx, tripID)
			if ferr != nil {
				return fmt.Errorf("%w: %v", ErrPersistence, ferr)
			}
			if existing.DriverID != "" && existing.DriverID != driverID {
				return ErrDriverExists
			}
			existing.DriverID = driverID
			existing.CurrentDriverLocation = trip.CurrentDriverLocation
			if existing.Status == models.StatusPending {
				existing.Status = models.StatusDriverJoined
			}
			trip, err = existing, c.store.Save(ctx, existing)
		}
	} else {
		err = c.store.Save(ctx, trip)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if err := c.admit(ctx, sess, tripID, models.RoleDriver); err != nil {
		return err
	}

	// Fan the join announcement through the relay so the user sees it no
	// matter which instance holds their socket. The payload carries the
	// trip's anchor so the driver UI can render the pickup point.
	c.publishNotification(ctx, tripID, events.Notification{
		Type:           events.TypeDriverJoined,
		TripID:         tripID,
		DriverID:       driverID,
		Message:        "Driver has joined",
		DriverLocation: trip.CurrentDriverLocation,
		UserLocation:   trip.UserLocation,
	})
	return nil
}

func (c *Coordinator) admitUser(ctx context.Context, sess *session.Session, tripID, customerID string, loc *models.Location) error {
	trip, err := c.store.FindByTripID(ctx, tripID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		trip = &models.Trip{TripID: tripID, Status: models.StatusPending, CustomerID: customerID}
		if loc != nil {
			l := *loc
			trip.UserLocation = &l
		}
		err = c.store.Create(ctx, trip)
		if errors.Is(err, storage.ErrDuplicate) {
			// concurrent create won; fall through to the update path below
			trip, err = c.store.FindByTripID(ctx, tripID)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrPersistence, err)
			}
			c.mergeUser(trip, customerID, loc)
			err = c.store.Save(ctx, trip)
		}
	case err != nil:
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	default:
		c.mergeUser(trip, customerID, loc)
		err = c.store.Save(ctx, trip)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	return c.admit(ctx, sess, tripID, models.RoleUser)
}

// mergeUser applies a user join onto an existing record. The anchor location
// is written exactly once for the trip's lifetime.
func (c *Coordinator) mergeUser(trip *models.Trip, customerID string, loc *models.Location) {
	trip.CustomerID = customerID
	if trip.UserLocation == nil && loc != nil {
		l := *loc
		trip.UserLocation = &l
	}
}

// admit binds the session, indexes it, and takes the trip's relay channels.
// A subscribe failure rolls the admission back so neither side is observable.
func (c *Coordinator) admit(ctx context.Context, sess *session.Session, tripID string, role models.Role) error {
	c.registry.Bind(sess, role, tripID)
	c.rooms.Join(sess)
	err := c.subs.ensure(ctx, c.relay, relay.LocationChannel(tripID), relay.NotificationChannel(tripID))
	if err != nil {
		c.rooms.Leave(sess)
		c.registry.Bind(sess, "", "")
		observability.RelayErrorsTotal.Inc()
		return fmt.Errorf("%w: %v", ErrRelayUnavailable, err)
	}
	return nil
}

// LeaveRoom reverses admission on disconnect or explicit leave. When the last
// local user-role session for the trip departs, the location channel is
// released; driver-role departures leave subscriptions in place unless
// configured otherwise. Remaining local members get a user-disconnected event.
func (c *Coordinator) LeaveRoom(ctx context.Context, sess *session.Session) {
	defer c.registry.Destroy(sess.ConnID)
	role, tripID := sess.Binding()
	if tripID == "" {
		return
	}

	lock := c.tripLock(tripID)
	lock.Lock()
	defer lock.Unlock()

	remainingSameRole := c.rooms.Leave(sess)
	members := c.rooms.Members(tripID)

	if role == models.RoleUser && remainingSameRole == 0 {
		if err := c.subs.drop(ctx, c.relay, relay.LocationChannel(tripID)); err != nil {
			c.logger.Warn("unsubscribe failed", "trip_id", tripID, "error", err)
		}
	}
	if role == models.RoleDriver && c.cfg.DriverUnsubscribeOnDisconnect && len(members) == 0 {
		if err := c.subs.drop(ctx, c.relay, relay.LocationChannel(tripID), relay.NotificationChannel(tripID)); err != nil {
			c.logger.Warn("unsubscribe failed", "trip_id", tripID, "error", err)
		}
	}

	payload := events.UserDisconnected{Role: role, Timestamp: time.Now().UnixMilli()}
	for _, m := range members {
		if err := m.Send(events.EventUserDisconnected, payload); err != nil {
			observability.DispatchDroppedTotal.Inc()
		}
	}

	c.logger.Info("left room", "trip_id", tripID, "role", role, "conn_id", sess.ConnID)
}

// Detach removes a session from its room without tearing the connection down,
// used when a driver announces arrival and leaves the trip. Subscriptions are
// left in place; any remaining members still need them.
func (c *Coordinator) Detach(ctx context.Context, sess *session.Session) {
	tripID := sess.TripID()
	if tripID == "" {
		return
	}
	lock := c.tripLock(tripID)
	lock.Lock()
	defer lock.Unlock()
	c.rooms.Leave(sess)
	c.registry.Bind(sess, "", "")
	c.logger.Info("detached from room", "trip_id", tripID, "conn_id", sess.ConnID)
}

// PublishNotification publishes onto the trip's notification channel with the
// envelope stamped by this instance. Used for the explicit driver:joined and
// driver:reached client events as well as coordinator-originated announcements.
func (c *Coordinator) PublishNotification(ctx context.Context, tripID string, n events.Notification) error {
	return c.publish(ctx, tripID, n)
}

func (c *Coordinator) publishNotification(ctx context.Context, tripID string, n events.Notification) {
	if err := c.publish(ctx, tripID, n); err != nil {
		// the admission already persisted; the lost announcement is a
		// documented divergence, not a rollback trigger
		c.logger.Warn("notification publish failed", "trip_id", tripID, "type", n.Type, "error", err)
	}
}

func (c *Coordinator) publish(ctx context.Context, tripID string, n events.Notification) error {
	now := time.Now().UnixMilli()
	n.Timestamp = now
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return c.relay.Publish(ctx, relay.Message{
		Channel:          relay.KindNotification,
		TripID:           tripID,
		Payload:          payload,
		Timestamp:        now,
		OriginInstanceID: c.cfg.InstanceID,
	})
}

// Subscribed reports whether this instance holds the channel. Exposed for the
// disconnect-path behavior checks.
func (c *Coordinator) Subscribed(channel string) bool { return c.subs.holds(channel) }

// tripLock returns the admission lock for a trip. Locks are never reaped: a
// blocked waiter and a fresh fetcher must always see the same mutex, and the
// per-trip footprint is a few dozen bytes.
func (c *Coordinator) tripLock(tripID string) *sync.Mutex {
	c.lockMu.Lock()
	defer c.lockMu.Unlock()
	l, ok := c.locks[tripID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[tripID] = l
	}
	return l
}
