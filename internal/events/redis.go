package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/p-n-ai/medq/internal/content"
)

// RedisBroker publishes changes to a Redis channel and relays everything on
// that channel, including its own messages, into the local hub. Every
// instance running a broker on the same channel sees every change once.
type RedisBroker struct {
	client  *redis.Client
	channel string
	hub     *Hub
}

// NewRedisBroker creates a broker relaying channel into hub.
func NewRedisBroker(client *redis.Client, channel string, hub *Hub) *RedisBroker {
	return &RedisBroker{client: client, channel: channel, hub: hub}
}

// Notify publishes c to the shared channel.
func (b *RedisBroker) Notify(ctx context.Context, c content.Change) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		// Local subscribers still hear about it.
		b.hub.Broadcast(c)
		return fmt.Errorf("publish change: %w", err)
	}
	return nil
}

// Run relays the channel into the hub until ctx is done. ready, when not
// nil, is closed once the subscription is confirmed.
func (b *RedisBroker) Run(ctx context.Context, ready chan<- struct{}) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	if ready != nil {
		close(ready)
	}
	slog.Info("relaying content changes", "channel", b.channel)

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var c content.Change
			if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
				slog.Warn("dropping malformed change", "channel", b.channel, "error", err)
				continue
			}
			b.hub.Broadcast(c)
		}
	}
}
