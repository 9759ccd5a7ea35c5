package watch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBroker fans events out through Redis pub/sub so every server instance
// sees changes made on any other.
type RedisBroker struct {
	client *redis.Client
	prefix string
}

// NewRedisBroker creates a broker on client. Channel names are prefix+topic.
func NewRedisBroker(client *redis.Client, prefix string) *RedisBroker {
	if prefix == "" {
		prefix = "ivvboard:"
	}
	return &RedisBroker{client: client, prefix: prefix}
}

// Publish implements Publisher.
func (b *RedisBroker) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	for _, topic := range ev.Topics() {
		if err := b.client.Publish(ctx, b.prefix+topic, data).Err(); err != nil {
			return fmt.Errorf("publish to redis: %w", err)
		}
	}
	return nil
}

// Subscribe implements Subscriber.
func (b *RedisBroker) Subscribe(ctx context.Context, topic string) (<-chan Event, error) {
	ps := b.client.Subscribe(ctx, b.prefix+topic)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe to redis: %w", err)
	}

	in := ps.Channel()
	out := make(chan Event, subscriberBuffer)

	go func() {
		defer close(out)
		defer ps.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					zap.L().Warn("discarding malformed event",
						zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				select {
				case out <- ev:
				default:
				}
			}
		}
	}()

	return out, nil
}

// Ping checks the Redis connection.
func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}
