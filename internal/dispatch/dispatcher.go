// Package dispatch fans relay messages out to locally-connected sessions and
// owns the websocket send path. It never blocks on a slow socket: each send is
// bounded by a write deadline and a failure only costs that one event.
package dispatch

import (
	"encoding/json"
	"log/slog"

	"github.com/example/trip-tracking/internal/events"
	"github.com/example/trip-tracking/internal/models"
	"github.com/example/trip-tracking/internal/observability"
	"github.com/example/trip-tracking/internal/relay"
	"github.com/example/trip-tracking/internal/session"
)

// Dispatcher translates relay messages into participant-facing events.
type Dispatcher struct {
	rooms  *session.Rooms
	logger *slog.Logger
}

func NewDispatcher(rooms *session.Rooms, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{rooms: rooms, logger: logger}
}

// HandleRelay is the relay's delivery callback. Driver position updates and
// DRIVER_REACHED notifications go to user-role sessions only; DRIVER_JOINED
// fans out to every local member of the trip.
func (d *Dispatcher) HandleRelay(m relay.Message) {
	switch m.Channel {
	case relay.KindLocation:
		var p events.DriverLocation
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			d.logger.Error("bad location payload", "trip_id", m.TripID, "error", err)
			return
		}
		d.fanOut(m.TripID, events.EventDriverLocation, p, true)
	case relay.KindNotification:
		var n events.Notification
		if err := json.Unmarshal(m.Payload, &n); err != nil {
			d.logger.Error("bad notification payload", "trip_id", m.TripID, "error", err)
			return
		}
		userOnly := n.Type == events.TypeDriverReached
		d.fanOut(m.TripID, events.EventNotification, n, userOnly)
	default:
		d.logger.Warn("relay message on unknown channel", "channel", m.Channel)
	}
}

func (d *Dispatcher) fanOut(tripID, event string, data any, userOnly bool) {
	for _, s := range d.rooms.Members(tripID) {
		if userOnly && s.Role() != models.RoleUser {
			continue
		}
		if err := s.Send(event, data); err != nil {
			observability.DispatchDroppedTotal.Inc()
			d.logger.Warn("event send failed", "event", event, "conn_id", s.ConnID, "error", err)
		}
	}
}
