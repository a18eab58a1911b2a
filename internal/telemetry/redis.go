package telemetry

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the Pub/Sub channel telemetry is published on.
const DefaultChannel = "updown:telemetry"

type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// RedisPublisher publishes events on a Redis Pub/Sub channel.
type RedisPublisher struct {
	rdb     redisClient
	channel string
}

// NewRedisPublisher connects to Redis and verifies the connection.
func NewRedisPublisher(ctx context.Context, cfg RedisConfig) (*RedisPublisher, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	err := rdb.Ping(ctx).Err()
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return newRedisPublisher(rdb, cfg.Channel), nil
}

func newRedisPublisher(rdb redisClient, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{rdb: rdb, channel: channel}
}

// Name implements Sink.
func (p *RedisPublisher) Name() string {
	return "redis"
}

// Publish implements Sink.
func (p *RedisPublisher) Publish(ctx context.Context, payload []byte) error {
	err := p.rdb.Publish(ctx, p.channel, payload).Err()
	if err != nil {
		return fmt.Errorf("redis publish %s: %w", p.channel, err)
	}
	return nil
}

// Close closes the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}
