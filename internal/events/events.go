// Package events defines the connection-facing event surface. Event names are
// fixed for wire compatibility with existing clients; payloads are decoded and
// validated once at the boundary and passed onward as typed values.
package events

import (
	"encoding/json"
	"errors"

	"github.com/example/trip-tracking/internal/models"
)

// Inbound event names.
const (
	EventJoinRoom       = "join-room"
	EventUpdateLocation = "update-location"
	EventDriverJoined   = "driver:joined"
	EventDriverReached  = "driver:reached"
)

// Outbound event names.
const (
	EventJoinedRoom       = "joined-room"
	EventError            = "error"
	EventNotification     = "notification"
	EventDriverLocation   = "driver-location"
	EventUserDisconnected = "user-disconnected"
)

// Notification types carried in the "notification" event payload.
const (
	TypeDriverJoined  = "DRIVER_JOINED"
	TypeDriverReached = "DRIVER_REACHED"
)

// ErrInvalidLocation is returned when a location payload is missing a field or
// carries a non-numeric lat/lng.
var ErrInvalidLocation = errors.New("invalid location data")

// Envelope is the JSON frame exchanged over a connection in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Decode unmarshals the envelope's data into v.
func (e Envelope) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// JoinRoom asks for admission into a trip room.
type JoinRoom struct {
	TripID        string          `json:"tripId"`
	Role          models.Role     `json:"role"`
	ParticipantID string          `json:"participantId"`
	Location      json.RawMessage `json:"location"`
}

// UpdateLocation carries a driver position report. Location stays raw until
// validated because clients have been observed sending strings for lat/lng.
type UpdateLocation struct {
	DriverID string          `json:"driverId"`
	Location json.RawMessage `json:"location"`
}

// DriverJoined is the explicit client announcement that a driver entered the
// trip, relayed to the user as a DRIVER_JOINED notification.
type DriverJoined struct {
	TripID   string          `json:"tripId"`
	DriverID string          `json:"driverId"`
	Location json.RawMessage `json:"location"`
}

// DriverReached announces arrival and detaches the driver from the room.
type DriverReached struct {
	TripID string `json:"tripId"`
}

// Notification is the payload of the "notification" outbound event and of
// relay messages on the notification channel.
type Notification struct {
	Type           string           `json:"type"`
	TripID         string           `json:"tripId"`
	DriverID       string           `json:"driverId,omitempty"`
	Message        string           `json:"message"`
	Timestamp      int64            `json:"timestamp"`
	DriverLocation *models.Location `json:"driverLocation,omitempty"`
	UserLocation   *models.Location `json:"userLocation,omitempty"`
}

// DriverLocation is the payload of the "driver-location" outbound event and of
// relay messages on the location channel. ServerID identifies the publishing
// instance, useful when tracing a report across the fleet.
type DriverLocation struct {
	Location  models.Location `json:"location"`
	Timestamp int64           `json:"timestamp"`
	ServerID  string          `json:"serverId"`
}

// UserDisconnected notifies remaining room members that a participant left.
type UserDisconnected struct {
	Role      models.Role `json:"role"`
	Timestamp int64       `json:"timestamp"`
}

// Sender delivers outbound events to a single connection. Implementations must
// be safe for concurrent use: the connection's own handler and the relay
// listener both emit through it.
type Sender interface {
	Send(event string, data any) error
}

// ParseLocation validates a raw location payload. Both fields must be present
// and numeric; anything else is ErrInvalidLocation.
func ParseLocation(raw json.RawMessage) (models.Location, error) {
	if len(raw) == 0 {
		return models.Location{}, ErrInvalidLocation
	}
	var probe struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return models.Location{}, ErrInvalidLocation
	}
	if probe.Lat == nil || probe.Lng == nil {
		return models.Location{}, ErrInvalidLocation
	}
	return models.Location{Lat: *probe.Lat, Lng: *probe.Lng}, nil
}
