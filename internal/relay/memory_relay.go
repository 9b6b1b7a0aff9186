package relay

import (
	"context"
	"sync"
)

// MemoryBus is an in-process stand-in for the pub/sub transport, used when no
// REDIS_ADDR is configured and in tests. Each attached MemoryRelay behaves
// like one server instance's relay connection; a publish from any of them is
// delivered synchronously to every attached relay subscribed to the channel,
// which preserves single-publisher FIFO per channel.
type MemoryBus struct {
	mu     sync.RWMutex
	relays []*MemoryRelay
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

// Connect attaches a new instance-scoped relay to the bus.
func (b *MemoryBus) Connect(handler Handler) *MemoryRelay {
	r := &MemoryRelay{bus: b, handler: handler, channels: make(map[string]struct{})}
	b.mu.Lock()
	b.relays = append(b.relays, r)
	b.mu.Unlock()
	return r
}

func (b *MemoryBus) deliver(m Message) {
	b.mu.RLock()
	relays := make([]*MemoryRelay, len(b.relays))
	copy(relays, b.relays)
	b.mu.RUnlock()
	for _, r := range relays {
		r.receive(m)
	}
}

// MemoryRelay implements Relay against a MemoryBus.
type MemoryRelay struct {
	bus      *MemoryBus
	handler  Handler
	mu       sync.RWMutex
	channels map[string]struct{}
}

func (r *MemoryRelay) Publish(ctx context.Context, m Message) error {
	r.bus.deliver(m)
	return nil
}

func (r *MemoryRelay) Subscribe(ctx context.Context, channels ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range channels {
		r.channels[c] = struct{}{}
	}
	return nil
}

func (r *MemoryRelay) Unsubscribe(ctx context.Context, channels ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range channels {
		delete(r.channels, c)
	}
	return nil
}

// Subscribed reports whether the relay currently holds a subscription.
func (r *MemoryRelay) Subscribed(channel string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.channels[channel]
	return ok
}

func (r *MemoryRelay) receive(m Message) {
	r.mu.RLock()
	_, ok := r.channels[m.WireChannel()]
	r.mu.RUnlock()
	if ok && r.handler != nil {
		r.handler(m)
	}
}
