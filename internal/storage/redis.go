package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKeyPrefix = "ruiji:embedding:"

// RedisConfig holds connection settings for RedisEmbeddingStore.
type RedisConfig struct {
	Address   string
	Password  string
	Database  int
	KeyPrefix string
	Timeout   time.Duration
}

// RedisEmbeddingStore keeps embeddings in Redis so several server processes can share them.
type RedisEmbeddingStore struct {
	client *redis.Client
	prefix string
}

// NewRedisEmbeddingStore connects to Redis and verifies the connection with PING.
func NewRedisEmbeddingStore(ctx context.Context, cfg RedisConfig) (*RedisEmbeddingStore, error) {
	opts := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.Database,
	}
	if cfg.Timeout > 0 {
		opts.DialTimeout = cfg.Timeout
		opts.ReadTimeout = cfg.Timeout
		opts.WriteTimeout = cfg.Timeout
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Address, err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultRedisKeyPrefix
	}
	return &RedisEmbeddingStore{client: client, prefix: prefix}, nil
}

func (s *RedisEmbeddingStore) key(id string) string {
	return s.prefix + id
}

// GetEmbedding returns the embedding stored under id.
func (s *RedisEmbeddingStore) GetEmbedding(ctx context.Context, id string) ([]float32, error) {
	b, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("embedding %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return DecodeVector(b)
}

// BatchGetEmbeddings fetches ids with a single MGET.
func (s *RedisEmbeddingStore) BatchGetEmbeddings(ctx context.Context, ids []string) (map[string][]float32, error) {
	if err := CheckBatch(ids); err != nil {
		return nil, err
	}
	out := make(map[string][]float32, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		vec, err := DecodeVector([]byte(str))
		if err != nil {
			return nil, fmt.Errorf("embedding %s: %w", ids[i], err)
		}
		out[ids[i]] = vec
	}
	return out, nil
}

// PutEmbedding stores vec with SETNX so the first write wins.
func (s *RedisEmbeddingStore) PutEmbedding(ctx context.Context, id string, vec []float32) error {
	if err := s.client.SetNX(ctx, s.key(id), EncodeVector(vec), 0).Err(); err != nil {
		return fmt.Errorf("store embedding %s: %w", id, err)
	}
	return nil
}

// CountEmbeddings scans the key prefix and counts matching keys.
func (s *RedisEmbeddingStore) CountEmbeddings(ctx context.Context) (int64, error) {
	var (
		count  int64
		cursor uint64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 500).Result()
		if err != nil {
			return 0, err
		}
		count += int64(len(keys))
		if next == 0 {
			return count, nil
		}
		cursor = next
	}
}

// Close closes the Redis client.
func (s *RedisEmbeddingStore) Close() error {
	return s.client.Close()
}
