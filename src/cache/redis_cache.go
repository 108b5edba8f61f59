package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/swarmworks/hivegate/src/config"
	"github.com/swarmworks/hivegate/src/models"
)

// RedisCache is an exact-match completion cache: identical envelopes
// within the TTL are answered without consuming the accelerator queue.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(cfg *config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisCache{
		client: client,
		ttl:    cfg.CacheTTL,
	}, nil
}

// Key derives the cache key from everything that can change the answer:
// the messages, the sampling parameters, and the routing hints.
func Key(req *models.ChatRequest, priority models.Priority, complexity models.Complexity, backend string) string {
	var data string
	for _, m := range req.Messages {
		data += m.Role + ":" + m.Content + "|"
	}
	data += fmt.Sprintf("%s|%d|%.3f|%.3f|%s|%s|%s",
		req.Model, req.MaxTokens, req.Temperature, req.TopP, priority, complexity, backend)
	hash := md5.Sum([]byte(data))
	return "completion:" + hex.EncodeToString(hash[:])
}

func (c *RedisCache) Get(ctx context.Context, key string) (*models.ChatResponse, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var response models.ChatResponse
	if err := json.Unmarshal([]byte(val), &response); err != nil {
		return nil, err
	}

	return &response, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, response *models.ChatResponse) error {
	data, err := json.Marshal(response)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, key, data, c.ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
