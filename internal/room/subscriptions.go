package room

import (
	"context"
	"sync"

	"github.com/example/trip-tracking/internal/relay"
)

// subscriptions tracks which relay channels this instance currently holds, so
// joins subscribe once per channel and leaves can tear down selectively.
type subscriptions struct {
	mu       sync.Mutex
	channels map[string]struct{}
}

func newSubscriptions() *subscriptions {
	return &subscriptions{channels: make(map[string]struct{})}
}

// ensure subscribes any of the given channels not already held.
func (s *subscriptions) ensure(ctx context.Context, r relay.Relay, channels ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	missing := make([]string, 0, len(channels))
	for _, c := range channels {
		if _, ok := s.channels[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	if err := r.Subscribe(ctx, missing...); err != nil {
		return err
	}
	for _, c := range missing {
		s.channels[c] = struct{}{}
	}
	return nil
}

// drop unsubscribes the given channels if held.
func (s *subscriptions) drop(ctx context.Context, r relay.Relay, channels ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	held := make([]string, 0, len(channels))
	for _, c := range channels {
		if _, ok := s.channels[c]; ok {
			held = append(held, c)
		}
	}
	if len(held) == 0 {
		return nil
	}
	if err := r.Unsubscribe(ctx, held...); err != nil {
		return err
	}
	for _, c := range held {
		delete(s.channels, c)
	}
	return nil
}

// holds reports whether the channel is currently subscribed.
func (s *subscriptions) holds(channel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.channels[channel]
	return ok
}
