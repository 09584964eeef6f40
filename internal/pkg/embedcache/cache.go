package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "flipper:embedding:img:"

// Cache 以图片 URL 为键缓存已计算的向量，避免重复调用向量服务。
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCache(rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{
		rdb: rdb,
		ttl: ttl,
	}
}

// Get 返回缓存的向量；未命中返回 (nil, false, nil)。
func (c *Cache) Get(ctx context.Context, imageURL string) ([]float64, bool, error) {
	if c == nil || c.rdb == nil || imageURL == "" {
		return nil, false, nil
	}
	raw, err := c.rdb.Get(ctx, keyPrefix+hashURL(imageURL)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("embedcache get: %w", err)
	}

	var vec []float64
	if err := json.Unmarshal([]byte(raw), &vec); err != nil {
		return nil, false, fmt.Errorf("embedcache decode: %w", err)
	}
	return vec, true, nil
}

// Put 写入向量缓存。
func (c *Cache) Put(ctx context.Context, imageURL string, vec []float64) error {
	if c == nil || c.rdb == nil || imageURL == "" || len(vec) == 0 {
		return nil
	}
	raw, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("embedcache encode: %w", err)
	}
	if err := c.rdb.Set(ctx, keyPrefix+hashURL(imageURL), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("embedcache set: %w", err)
	}
	return nil
}

func hashURL(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}
