// Package broadcast publishes evaluated results to external subscribers.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/freshness-monitor/backend/internal/models"
	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the Redis connection and keys.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	LatestKey string
	Channel   string
	TTL       time.Duration
}

// redisClient is the part of *redis.Client the sink uses.
type redisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink caches the latest result under a key and publishes every result
// on a channel, so other dashboard instances can follow along.
type RedisSink struct {
	client    redisClient
	latestKey string
	channel   string
	ttl       time.Duration
	closer    func() error
}

// NewRedisClient connects and pings the server.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

// NewRedisSink wraps a connected client.
func NewRedisSink(client *redis.Client, opts RedisOptions) *RedisSink {
	s := newRedisSink(client, opts)
	s.closer = client.Close
	return s
}

func newRedisSink(client redisClient, opts RedisOptions) *RedisSink {
	return &RedisSink{
		client:    client,
		latestKey: opts.LatestKey,
		channel:   opts.Channel,
		ttl:       opts.TTL,
	}
}

// Publish stores result as the latest and announces it.
func (s *RedisSink) Publish(ctx context.Context, result *models.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	if s.latestKey != "" {
		if err := s.client.Set(ctx, s.latestKey, data, s.ttl).Err(); err != nil {
			return fmt.Errorf("redis set %s: %w", s.latestKey, err)
		}
	}
	if s.channel != "" {
		if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
			return fmt.Errorf("redis publish %s: %w", s.channel, err)
		}
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
