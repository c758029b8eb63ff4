package redis

// Package redis implements the coordination store: pending queues,
// worker directory, running-job tracking, log streams and token lookup.

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Store wraps one client; it satisfies every coordination interface in
// internal/repository.
type Store struct {
	client *redis.Client
}

func New(ctx context.Context, redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Store{client: client}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}
