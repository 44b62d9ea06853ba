package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultCallTimeout bounds every store call that arrives without a deadline.
const defaultCallTimeout = 5 * time.Second

// RedisConfig configures the Redis-backed store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// RedisStore implements Store against a single Redis instance.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 10
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  defaultCallTimeout,
		WriteTimeout: defaultCallTimeout,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), defaultCallTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client. Used by tests that run
// against miniredis.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, defaultCallTimeout)
}

// encode converts a value to the byte form Redis stores. Bytes and strings
// pass through; everything else is JSON-marshaled.
func encode(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case []byte, string:
		return v, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal value: %w", err)
		}
		return data, nil
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	b, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return b, err
}

func (s *RedisStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	data, err := encode(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	return s.client.Del(ctx, keys...).Err()
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	return s.client.Expire(ctx, key, ttl).Err()
}

func (s *RedisStore) LPush(ctx context.Context, key string, values ...interface{}) error {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	encoded := make([]interface{}, len(values))
	for i, v := range values {
		data, err := encode(v)
		if err != nil {
			return err
		}
		encoded[i] = data
	}
	return s.client.LPush(ctx, key, encoded...).Err()
}

func (s *RedisStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	return s.client.LRange(ctx, key, start, stop).Result()
}

func (s *RedisStore) LTrim(ctx context.Context, key string, start, stop int64) error {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	return s.client.LTrim(ctx, key, start, stop).Err()
}

func (s *RedisStore) LRem(ctx context.Context, key string, count int64, value interface{}) error {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	data, err := encode(value)
	if err != nil {
		return err
	}
	return s.client.LRem(ctx, key, count, data).Err()
}

func (s *RedisStore) LLen(ctx context.Context, key string) (int64, error) {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	return s.client.LLen(ctx, key).Result()
}

func (s *RedisStore) RPop(ctx context.Context, key string) (string, error) {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	v, err := s.client.RPop(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return v, err
}

func (s *RedisStore) HSet(ctx context.Context, key, field string, value interface{}) error {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	data, err := encode(value)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, key, field, data).Err()
}

func (s *RedisStore) HGet(ctx context.Context, key, field string) (string, error) {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	v, err := s.client.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return v, err
}

func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	return s.client.HGetAll(ctx, key).Result()
}

func (s *RedisStore) HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error) {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	return s.client.HIncrBy(ctx, key, field, incr).Result()
}

func (s *RedisStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	return s.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

func (s *RedisStore) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	return s.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: formatScore(min),
		Max: formatScore(max),
	}).Result()
}

func (s *RedisStore) ZRangeByScoreWithScores(ctx context.Context, key string, min, max float64) ([]ScoredMember, error) {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	zs, err := s.client.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
		Min: formatScore(min),
		Max: formatScore(max),
	}).Result()
	if err != nil {
		return nil, err
	}
	members := make([]ScoredMember, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		members = append(members, ScoredMember{Member: member, Score: z.Score})
	}
	return members, nil
}

func (s *RedisStore) ZRemRangeByScore(ctx context.Context, key string, min, max float64) error {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	return s.client.ZRemRangeByScore(ctx, key, formatScore(min), formatScore(max)).Err()
}

func (s *RedisStore) SAdd(ctx context.Context, key string, members ...interface{}) error {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	return s.client.SAdd(ctx, key, members...).Err()
}

func (s *RedisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	return s.client.SMembers(ctx, key).Result()
}

func (s *RedisStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

func formatScore(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "+inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
