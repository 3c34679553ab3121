package cache

import (
	"context"
	"crypto/md5"
	"fmt"
	"time"
)

// Embedding vectors for identical normalized text never change within a model,
// so a long TTL is safe. Two weeks covers re-runs of the same weekly batch.
const embeddingTTL = 14 * 24 * time.Hour

// EmbeddingCache provides caching for embedding vectors, keyed by model and
// normalized text. A nil redis client disables caching entirely.
type EmbeddingCache struct {
	redis *RedisClient
}

// NewEmbeddingCache creates a new embedding cache instance
func NewEmbeddingCache(redis *RedisClient) *EmbeddingCache {
	return &EmbeddingCache{
		redis: redis,
	}
}

// Get retrieves a cached embedding vector for the given model and text.
// Returns the vector and true if found, nil and false otherwise.
func (c *EmbeddingCache) Get(ctx context.Context, model, text string) ([]float64, bool) {
	if c.redis == nil {
		return nil, false
	}

	var vector []float64
	if err := c.redis.Get(ctx, embeddingKey(model, text), &vector); err != nil {
		return nil, false
	}
	if len(vector) == 0 {
		return nil, false
	}

	return vector, true
}

// Set caches an embedding vector for the given model and text
func (c *EmbeddingCache) Set(ctx context.Context, model, text string, vector []float64) error {
	if c.redis == nil {
		return fmt.Errorf("redis client not available")
	}

	return c.redis.Set(ctx, embeddingKey(model, text), vector, embeddingTTL)
}

// embeddingKey builds a cache key from a hash of the text to keep keys short
func embeddingKey(model, text string) string {
	hash := md5.Sum([]byte(text))
	return fmt.Sprintf("embedding:%s:%x", model, hash[:8])
}
