// Package redis implements the merged-response cache on Redis.
// Entries are keyed by the dispatch identity (kind, input, ambient
// context) and expire on a time-to-live; nothing here persists chat
// transcripts.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/davidbz/haku/internal/domain"
	"github.com/davidbz/haku/internal/observability"
)

// Config contains Redis cache settings. The cache is disabled by
// default; when disabled the orchestrator runs without one.
type Config struct {
	Enabled  bool   `env:"CACHE_ENABLED"  envDefault:"false"`
	Addr     string `env:"REDIS_ADDR"     envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB"       envDefault:"0"`
}

// Store implements the domain.ResponseCache interface on Redis.
type Store struct {
	client *redis.Client
}

// NewStore creates a new Redis-backed response cache and verifies
// connectivity.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	observability.FromContext(ctx).Info("response cache connected",
		observability.String("addr", cfg.Addr))

	return &Store{client: client}, nil
}

// Get retrieves a cached entry, or domain.ErrCacheMiss.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}

	return data, nil
}

// Set stores an entry with a time-to-live.
func (s *Store) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}

	return nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
