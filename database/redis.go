package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisClient struct {
	client *redis.Client
}

func GetRedisClient(addr, password string, db int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisClient{client: client}, nil
}

func NewRedisClientFrom(client *redis.Client) *RedisClient {
	return &RedisClient{client: client}
}

func evictionKey(userID, instanceID string) string {
	return fmt.Sprintf("session:evicted:%s:%s", userID, instanceID)
}

// MarkEvicted records that an instance was displaced. The mark expires on
// its own after ttl.
func (r *RedisClient) MarkEvicted(ctx context.Context, userID, instanceID string, ttl time.Duration) error {
	return r.client.Set(ctx, evictionKey(userID, instanceID), time.Now().UTC().Format(time.RFC3339), ttl).Err()
}

func (r *RedisClient) IsEvicted(ctx context.Context, userID, instanceID string) (bool, error) {
	_, err := r.client.Get(ctx, evictionKey(userID, instanceID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *RedisClient) ClearEvicted(ctx context.Context, userID, instanceID string) error {
	return r.client.Del(ctx, evictionKey(userID, instanceID)).Err()
}

func (r *RedisClient) Publish(ctx context.Context, channel string, payload []byte) error {
	return r.client.Publish(ctx, channel, payload).Err()
}

func (r *RedisClient) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	return r.client.Subscribe(ctx, channel)
}

func (r *RedisClient) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
