package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultChannelPrefix namespaces broadcast topics on the shared Redis.
const DefaultChannelPrefix = "dispatch:"

// RedisBroadcaster fans realtime messages out over Redis pub/sub. Subscribers
// (socket gateways) listen on <prefix><topic>.
type RedisBroadcaster struct {
	client *redis.Client
	prefix string
}

func NewRedisBroadcaster(client *redis.Client, prefix string) *RedisBroadcaster {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisBroadcaster{client: client, prefix: prefix}
}

// Channel returns the pub/sub channel a topic is published on.
func (b *RedisBroadcaster) Channel(topic string) string {
	return b.prefix + topic
}

func (b *RedisBroadcaster) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.client.Publish(ctx, b.Channel(topic), payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}
