package classification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"sift/internal/constants"
	"sift/pkg/models"
)

// Cache keeps recent classification results in Redis so replayed events
// skip strategy evaluation and republish the original result.
type Cache interface {
	Get(ctx context.Context, tenantID, messageID string) (models.ClassificationResult, bool, error)
	Set(ctx context.Context, result models.ClassificationResult, ttl time.Duration) error
	DeleteTenant(ctx context.Context, tenantID string) (int, error)
}

type RedisCache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) Cache {
	return &RedisCache{client: client}
}

func cacheKey(tenantID, messageID string) string {
	return fmt.Sprintf("%s%s:%s:%s",
		constants.TenantKeyPrefix, tenantID, constants.ClassificationKeySegment, messageID)
}

func (c *RedisCache) Get(ctx context.Context, tenantID, messageID string) (models.ClassificationResult, bool, error) {
	data, err := c.client.Get(ctx, cacheKey(tenantID, messageID)).Bytes()
	if err == redis.Nil {
		return models.ClassificationResult{}, false, nil
	}
	if err != nil {
		return models.ClassificationResult{}, false, fmt.Errorf("redis GET failed: %w", err)
	}

	var result models.ClassificationResult
	if err := json.Unmarshal(data, &result); err != nil {
		// corrupt entry: treat as a miss and let the fresh result overwrite it
		return models.ClassificationResult{}, false, nil
	}

	return result, true, nil
}

func (c *RedisCache) Set(ctx context.Context, result models.ClassificationResult, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode classification result: %w", err)
	}

	if err := c.client.Set(ctx, cacheKey(result.TenantID, result.MessageID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}

	return nil
}

func (c *RedisCache) DeleteTenant(ctx context.Context, tenantID string) (int, error) {
	pattern := fmt.Sprintf("%s%s:%s:*", constants.TenantKeyPrefix, tenantID, constants.ClassificationKeySegment)

	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	deleted := 0
	for iter.Next(ctx) {
		if ctx.Err() != nil {
			return deleted, ctx.Err()
		}
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return deleted, fmt.Errorf("redis DEL failed for %s: %w", iter.Val(), err)
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("redis scan failed: %w", err)
	}

	return deleted, nil
}
