package resultcache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "organizer:results:"

// RedisStore 以 Redis 為後端的結果快取，多台機器共用同一份快取時使用
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore 創建 Redis 快取並驗證連線
func NewRedisStore(addr string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Contains 回報 slug 是否已有快取
func (s *RedisStore) Contains(ctx context.Context, slug string) bool {
	n, err := s.client.Exists(ctx, redisKeyPrefix+slug).Result()
	return err == nil && n > 0
}

// Put 寫入一筆快取
func (s *RedisStore) Put(ctx context.Context, slug string, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, redisKeyPrefix+slug, data, 0).Err()
}

// Close 釋放連線
func (s *RedisStore) Close() error {
	return s.client.Close()
}
