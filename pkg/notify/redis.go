package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dukex/querygate/pkg/events"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisQueue is the list events are pushed onto.
const DefaultRedisQueue = "querygate:notifications"

// RedisPusher is the subset of the redis client RedisQueue needs.
type RedisPusher interface {
	RPush(ctx context.Context, key string, values ...any) *redis.IntCmd
}

// RedisQueue appends JSON encoded events to a Redis list for an external consumer.
type RedisQueue struct {
	client RedisPusher
	queue  string
}

func NewRedisQueue(client RedisPusher, queue string) *RedisQueue {
	if queue == "" {
		queue = DefaultRedisQueue
	}

	return &RedisQueue{client: client, queue: queue}
}

// NewRedisClient connects to the server at url (redis://...) and checks it answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

func (q *RedisQueue) Notify(ctx context.Context, event events.RequestEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if err := q.client.RPush(ctx, q.queue, payload).Err(); err != nil {
		return fmt.Errorf("failed to push to %s: %w", q.queue, err)
	}

	return nil
}
