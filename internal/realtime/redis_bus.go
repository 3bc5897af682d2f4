package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisBus fans events out across processes via Redis pub/sub, feeding
// each process's local hub. With a single process the hub alone suffices;
// the bus exists so SSE subscribers can sit on any replica.
type RedisBus struct {
	rdb     *goredis.Client
	channel string
	hub     *Hub
	logger  *slog.Logger
}

// NewRedisBus connects to Redis and verifies the connection.
func NewRedisBus(addr, channel string, hub *Hub, logger *slog.Logger) (*RedisBus, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisBus{
		rdb:     rdb,
		channel: channel,
		hub:     hub,
		logger:  logger,
	}, nil
}

// Broadcast publishes the event. Publish failures are logged and dropped;
// delivery is best-effort by contract.
func (b *RedisBus) Broadcast(ctx context.Context, event Event) {
	raw, err := json.Marshal(event)
	if err != nil {
		b.logger.Warn("drop unmarshalable event", "kind", event.Kind, "error", err)
		return
	}
	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
		b.logger.Warn("redis publish failed", "kind", event.Kind, "error", err)
	}
}

// StartForwarder subscribes to the channel and replays events into the
// local hub until ctx is cancelled.
func (b *RedisBus) StartForwarder(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, b.channel)

	// Confirms the subscription actually started.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.logger.Warn("drop malformed bus event", "error", err)
					continue
				}
				b.hub.Broadcast(ctx, event)
			}
		}
	}()

	return nil
}

// Close releases the Redis connection.
func (b *RedisBus) Close() error { return b.rdb.Close() }
