// Package relay is the pub/sub fabric between server instances. Any instance
// publishes trip events to a channel; every subscribed instance receives them
// and fans out to its locally-connected sockets. Delivery is at-most-once per
// subscriber with no cross-channel ordering.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Channel kinds. The wire channel name is "<kind>:<tripId>".
const (
	KindLocation     = "location"
	KindNotification = "notification"
)

// Message is the transient value carried on a relay channel, JSON-encoded on
// the wire. Payload stays raw here; the dispatcher decodes it per kind.
type Message struct {
	Channel          string          `json:"channel"`
	TripID           string          `json:"tripId"`
	Payload          json.RawMessage `json:"payload"`
	Timestamp        int64           `json:"timestamp"`
	OriginInstanceID string          `json:"originInstanceId"`
}

// WireChannel returns the transport channel name for the message.
func (m Message) WireChannel() string { return m.Channel + ":" + m.TripID }

// Handler receives messages delivered to this instance's subscriptions.
type Handler func(Message)

// Relay is the publish/subscribe contract consumed by the coordinator and the
// tracker. Publish is fire-and-forget: an error is reported to the caller and
// logged but never retried by this layer.
type Relay interface {
	Publish(ctx context.Context, m Message) error
	Subscribe(ctx context.Context, channels ...string) error
	Unsubscribe(ctx context.Context, channels ...string) error
}

// LocationChannel names the driver-position channel for a trip.
func LocationChannel(tripID string) string { return KindLocation + ":" + tripID }

// NotificationChannel names the notification channel for a trip.
func NotificationChannel(tripID string) string { return KindNotification + ":" + tripID }

// SplitChannel parses a wire channel name into kind and trip id. Trip ids may
// themselves contain colons, so only the first separator counts.
func SplitChannel(channel string) (kind, tripID string, err error) {
	kind, tripID, ok := strings.Cut(channel, ":")
	if !ok || tripID == "" {
		return "", "", fmt.Errorf("malformed relay channel %q", channel)
	}
	if kind != KindLocation && kind != KindNotification {
		return "", "", fmt.Errorf("unknown relay channel kind %q", kind)
	}
	return kind, tripID, nil
}
