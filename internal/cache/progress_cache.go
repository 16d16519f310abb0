// internal/cache/progress_cache.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iaminawe/Mercury-Platform-sub001/internal/config"
)

// OperationSnapshot is the cached view of a sync operation served to status
// polls so hot polling does not hit the database.
type OperationSnapshot struct {
	OperationID    string    `json:"operation_id"`
	Status         string    `json:"status"`
	Progress       int       `json:"progress"`
	ProcessedItems int       `json:"processed_items"`
	TotalItems     int       `json:"total_items"`
	FailedItems    int       `json:"failed_items"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ProgressCache mirrors operation progress into Redis with a TTL. A nil
// *ProgressCache is valid and disables caching.
type ProgressCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

func NewProgressCache(cfg config.RedisConfig, ttl time.Duration) (*ProgressCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewProgressCacheWithClient(client, "", ttl), nil
}

// NewProgressCacheWithClient wraps an existing client; useful for sharing a
// connection across components and for tests.
func NewProgressCacheWithClient(client *redis.Client, keyPrefix string, ttl time.Duration) *ProgressCache {
	if keyPrefix == "" {
		keyPrefix = "sync:operation:"
	}
	return &ProgressCache{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

func (c *ProgressCache) Store(ctx context.Context, snapshot *OperationSnapshot) error {
	if c == nil {
		return nil
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	key := c.keyPrefix + snapshot.OperationID
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache snapshot: %w", err)
	}
	return nil
}

// Get returns (nil, nil) on a cache miss.
func (c *ProgressCache) Get(ctx context.Context, operationID string) (*OperationSnapshot, error) {
	if c == nil {
		return nil, nil
	}

	data, err := c.client.Get(ctx, c.keyPrefix+operationID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snapshot OperationSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snapshot, nil
}

func (c *ProgressCache) Invalidate(ctx context.Context, operationID string) error {
	if c == nil {
		return nil
	}
	return c.client.Del(ctx, c.keyPrefix+operationID).Err()
}
