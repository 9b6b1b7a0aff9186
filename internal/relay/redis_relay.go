package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/trip-tracking/internal/observability"
)

// RedisRelay implements Relay over Redis pub/sub. One PubSub connection per
// instance carries every trip subscription; go-redis re-issues the tracked
// subscriptions itself after a reconnect, so the receive loop only has to
// back off and try again.
type RedisRelay struct {
	client  *redis.Client
	pubsub  *redis.PubSub
	handler Handler
	logger  *slog.Logger
}

func NewRedisRelay(addr, password string, handler Handler, logger *slog.Logger) *RedisRelay {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisRelay{client: c, handler: handler, logger: logger}
}

// Start opens the subscriber connection and launches the receive loop. The
// loop runs until ctx is cancelled; receive errors never stop it.
func (r *RedisRelay) Start(ctx context.Context) {
	r.pubsub = r.client.Subscribe(ctx)
	go r.receiveLoop(ctx)
}

func (r *RedisRelay) receiveLoop(ctx context.Context) {
	attempt := 0
	for {
		msg, err := r.pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			attempt++
			delay := reconnectDelay(attempt)
			r.logger.Warn("relay receive error", "error", err, "attempt", attempt, "retry_in", delay)
			observability.RelayErrorsTotal.Inc()
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			continue
		}
		attempt = 0

		var m Message
		if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
			r.logger.Error("relay message decode failed", "channel", msg.Channel, "error", err)
			continue
		}
		if kind, tripID, err := SplitChannel(msg.Channel); err == nil {
			// the wire channel is authoritative for routing
			m.Channel = kind
			m.TripID = tripID
		}
		observability.RelayReceivedTotal.WithLabelValues(m.Channel).Inc()
		r.handler(m)
	}
}

// reconnectDelay caps the receive-loop backoff at min(attempt*50ms, 2s).
func reconnectDelay(attempt int) time.Duration {
	d := time.Duration(attempt) * 50 * time.Millisecond
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	return d
}

func (r *RedisRelay) Publish(ctx context.Context, m Message) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, m.WireChannel(), b).Err(); err != nil {
		observability.RelayErrorsTotal.Inc()
		return err
	}
	observability.RelayPublishedTotal.WithLabelValues(m.Channel).Inc()
	return nil
}

func (r *RedisRelay) Subscribe(ctx context.Context, channels ...string) error {
	if r.pubsub == nil {
		return errors.New("relay not started")
	}
	return r.pubsub.Subscribe(ctx, channels...)
}

func (r *RedisRelay) Unsubscribe(ctx context.Context, channels ...string) error {
	if r.pubsub == nil {
		return errors.New("relay not started")
	}
	return r.pubsub.Unsubscribe(ctx, channels...)
}

// Ping exposes subscriber-connection health for readiness checks.
func (r *RedisRelay) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRelay) Close() error {
	if r.pubsub != nil {
		_ = r.pubsub.Close()
	}
	return r.client.Close()
}
