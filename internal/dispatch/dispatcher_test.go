package dispatch

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/example/trip-tracking/internal/events"
	"github.com/example/trip-tracking/internal/models"
	"github.com/example/trip-tracking/internal/relay"
	"github.com/example/trip-tracking/internal/session"
)

type recordedEvent struct {
	event string
	data  any
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []recordedEvent
	broken bool
}

func (f *fakeSender) Send(event string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broken {
		return errors.New("socket gone")
	}
	f.sent = append(f.sent, recordedEvent{event: event, data: data})
	return nil
}

func (f *fakeSender) events() []recordedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedEvent, len(f.sent))
	copy(out, f.sent)
	return out
}

func setupRoom(t *testing.T) (*Dispatcher, *fakeSender, *fakeSender) {
	t.Helper()
	reg := session.NewRegistry()
	rooms := session.NewRooms()

	userSender := &fakeSender{}
	user := reg.Create("user-conn", userSender)
	reg.Bind(user, models.RoleUser, "trip-1")
	rooms.Join(user)

	driverSender := &fakeSender{}
	driver := reg.Create("driver-conn", driverSender)
	reg.Bind(driver, models.RoleDriver, "trip-1")
	rooms.Join(driver)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewDispatcher(rooms, logger), userSender, driverSender
}

func locationMessage(t *testing.T, tripID string) relay.Message {
	t.Helper()
	payload, err := json.Marshal(events.DriverLocation{Location: models.Location{Lat: 1, Lng: 2}, Timestamp: 7, ServerID: "srv-a"})
	if err != nil {
		t.Fatal(err)
	}
	return relay.Message{Channel: relay.KindLocation, TripID: tripID, Payload: payload, Timestamp: 7, OriginInstanceID: "srv-a"}
}

func notificationMessage(t *testing.T, tripID, typ string) relay.Message {
	t.Helper()
	payload, err := json.Marshal(events.Notification{Type: typ, TripID: tripID, Message: "x", Timestamp: 7})
	if err != nil {
		t.Fatal(err)
	}
	return relay.Message{Channel: relay.KindNotification, TripID: tripID, Payload: payload, Timestamp: 7, OriginInstanceID: "srv-a"}
}

func TestLocationFansOutToUsersOnly(t *testing.T) {
	d, userSender, driverSender := setupRoom(t)
	d.HandleRelay(locationMessage(t, "trip-1"))

	got := userSender.events()
	if len(got) != 1 || got[0].event != events.EventDriverLocation {
		t.Fatalf("user events: %+v", got)
	}
	p, ok := got[0].data.(events.DriverLocation)
	if !ok || p.Location != (models.Location{Lat: 1, Lng: 2}) || p.ServerID != "srv-a" {
		t.Fatalf("payload: %+v", got[0].data)
	}
	if len(driverSender.events()) != 0 {
		t.Fatalf("driver received a location broadcast")
	}
}

func TestDriverJoinedFansOutToAllMembers(t *testing.T) {
	d, userSender, driverSender := setupRoom(t)
	d.HandleRelay(notificationMessage(t, "trip-1", events.TypeDriverJoined))
	if len(userSender.events()) != 1 {
		t.Fatalf("user missed DRIVER_JOINED")
	}
	if len(driverSender.events()) != 1 {
		t.Fatalf("driver missed DRIVER_JOINED")
	}
}

func TestDriverReachedGoesToUsersOnly(t *testing.T) {
	d, userSender, driverSender := setupRoom(t)
	d.HandleRelay(notificationMessage(t, "trip-1", events.TypeDriverReached))
	if len(userSender.events()) != 1 {
		t.Fatalf("user missed DRIVER_REACHED")
	}
	if len(driverSender.events()) != 0 {
		t.Fatalf("driver received DRIVER_REACHED")
	}
}

func TestOtherRoomsUntouched(t *testing.T) {
	d, userSender, driverSender := setupRoom(t)
	d.HandleRelay(locationMessage(t, "trip-2"))
	if len(userSender.events()) != 0 || len(driverSender.events()) != 0 {
		t.Fatalf("message for another trip leaked into this room")
	}
}

func TestBrokenSenderDoesNotStopFanOut(t *testing.T) {
	reg := session.NewRegistry()
	rooms := session.NewRooms()

	broken := &fakeSender{broken: true}
	u1 := reg.Create("u1", broken)
	reg.Bind(u1, models.RoleUser, "trip-1")
	rooms.Join(u1)

	healthy := &fakeSender{}
	u2 := reg.Create("u2", healthy)
	reg.Bind(u2, models.RoleUser, "trip-1")
	rooms.Join(u2)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := NewDispatcher(rooms, logger)
	d.HandleRelay(locationMessage(t, "trip-1"))

	if len(healthy.events()) != 1 {
		t.Fatalf("healthy session missed the event after a peer send failure")
	}
}

func TestMalformedPayloadDropped(t *testing.T) {
	d, userSender, _ := setupRoom(t)
	d.HandleRelay(relay.Message{Channel: relay.KindLocation, TripID: "trip-1", Payload: json.RawMessage(`{`)})
	if len(userSender.events()) != 0 {
		t.Fatalf("malformed payload fanned out")
	}
}
