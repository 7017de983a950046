package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "mediaverify:dedup:"

// Dedup maps the SHA-256 of analysed bytes to the report produced for them.
type Dedup interface {
	Lookup(ctx context.Context, contentHash string) (reportID string, found bool, err error)
	Remember(ctx context.Context, contentHash, reportID string) error
	Forget(ctx context.Context, contentHash string) error
}

type RedisDedup struct {
	client *redis.Client
	ttl    time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

func NewRedisDedup(ctx context.Context, cfg RedisConfig) (*RedisDedup, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return &RedisDedup{client: client, ttl: cfg.TTL}, nil
}

func (d *RedisDedup) Lookup(ctx context.Context, contentHash string) (string, bool, error) {
	reportID, err := d.client.Get(ctx, keyPrefix+contentHash).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("dedup lookup failed: %w", err)
	}
	return reportID, true, nil
}

// Remember keeps the first report stored for a hash.
func (d *RedisDedup) Remember(ctx context.Context, contentHash, reportID string) error {
	if err := d.client.SetNX(ctx, keyPrefix+contentHash, reportID, d.ttl).Err(); err != nil {
		return fmt.Errorf("dedup store failed: %w", err)
	}
	return nil
}

// Forget drops a mapping whose report no longer resolves.
func (d *RedisDedup) Forget(ctx context.Context, contentHash string) error {
	if err := d.client.Del(ctx, keyPrefix+contentHash).Err(); err != nil {
		return fmt.Errorf("dedup forget failed: %w", err)
	}
	return nil
}

func (d *RedisDedup) Close() error {
	return d.client.Close()
}
