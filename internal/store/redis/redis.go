// Package redis stores profiles as Redis hashes, one key per identity.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vovakirdan/pianochat-server/internal/store"
)

const keyPrefix = "pianochat:profile:"

// RedisStore implements store.Store on top of a Redis client.
type RedisStore struct {
	rdb *goredis.Client
}

// New connects to redis and verifies connectivity.
func New(ctx context.Context, addr string, db int) (*RedisStore, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

// GetProfile retrieves a profile by identity.
func (s *RedisStore) GetProfile(ctx context.Context, identity string) (*store.Profile, error) {
	fields, err := s.rdb.HGetAll(ctx, key(identity)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall profile: %w", err)
	}
	if len(fields) == 0 {
		return nil, store.ErrNotFound
	}

	p := store.Profile{Name: fields["name"], Color: fields["color"]}
	if ts, err := strconv.ParseInt(fields["updated_at"], 10, 64); err == nil {
		p.UpdatedAt = time.Unix(ts, 0).UTC()
	}
	return &p, nil
}

// SaveProfile replaces the profile hash for an identity.
func (s *RedisStore) SaveProfile(ctx context.Context, identity string, p store.Profile) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	err := s.rdb.HSet(ctx, key(identity),
		"name", p.Name,
		"color", p.Color,
		"updated_at", strconv.FormatInt(p.UpdatedAt.Unix(), 10),
	).Err()
	if err != nil {
		return fmt.Errorf("hset profile: %w", err)
	}
	return nil
}

// Close shuts down the redis connection.
func (s *RedisStore) Close() error { return s.rdb.Close() }

func key(identity string) string { return keyPrefix + identity }
