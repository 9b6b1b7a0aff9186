package relay

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestSplitChannel(t *testing.T) {
	kind, tripID, err := SplitChannel("location:trip-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kind != KindLocation || tripID != "trip-1" {
		t.Fatalf("got %q %q", kind, tripID)
	}

	// trip ids may contain colons
	_, tripID, err = SplitChannel("notification:order:42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tripID != "order:42" {
		t.Fatalf("got trip id %q", tripID)
	}

	for _, bad := range []string{"location:", "bogus:trip-1", "noseparator"} {
		if _, _, err := SplitChannel(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestReconnectDelayCapped(t *testing.T) {
	if d := reconnectDelay(1); d != 50*time.Millisecond {
		t.Fatalf("attempt 1: got %v", d)
	}
	if d := reconnectDelay(10); d != 500*time.Millisecond {
		t.Fatalf("attempt 10: got %v", d)
	}
	if d := reconnectDelay(1000); d != 2*time.Second {
		t.Fatalf("attempt 1000: got %v", d)
	}
}

func TestMemoryBusRoundTrip(t *testing.T) {
	bus := NewMemoryBus()

	var gotA, gotB []Message
	a := bus.Connect(func(m Message) { gotA = append(gotA, m) })
	b := bus.Connect(func(m Message) { gotB = append(gotB, m) })

	ctx := context.Background()
	if err := b.Subscribe(ctx, LocationChannel("trip-1")); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	payload, _ := json.Marshal(map[string]any{"location": map[string]float64{"lat": 1, "lng": 2}})
	msg := Message{Channel: KindLocation, TripID: "trip-1", Payload: payload, Timestamp: 7, OriginInstanceID: "srv-a"}
	if err := a.Publish(ctx, msg); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(gotA) != 0 {
		t.Fatalf("unsubscribed instance received %d messages", len(gotA))
	}
	if len(gotB) != 1 {
		t.Fatalf("expected 1 delivery on B, got %d", len(gotB))
	}
	if string(gotB[0].Payload) != string(payload) || gotB[0].OriginInstanceID != "srv-a" {
		t.Fatalf("payload corrupted in transit: %+v", gotB[0])
	}

	if err := b.Unsubscribe(ctx, LocationChannel("trip-1")); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if err := a.Publish(ctx, msg); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(gotB) != 1 {
		t.Fatalf("delivery after unsubscribe")
	}
}
