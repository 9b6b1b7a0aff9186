package room

import "errors"

// Reject reasons surfaced to the joining connection as an "error" event. None
// of these are fatal to the connection.
var (
	ErrInvalidRequest   = errors.New("invalid room ID or role")
	ErrDriverExists     = errors.New("driver already exists in this room")
	ErrNoSuchTrip       = errors.New("no trip exists for this room")
	ErrPersistence      = errors.New("failed to persist trip")
	ErrRelayUnavailable = errors.New("relay unavailable")
)

// Reason maps a reject error to its metrics label.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrDriverExists):
		return "driver_exists"
	case errors.Is(err, ErrNoSuchTrip):
		return "no_such_trip"
	case errors.Is(err, ErrPersistence):
		return "persistence_error"
	case errors.Is(err, ErrRelayUnavailable):
		return "relay_unavailable"
	}
	return "unknown"
}
