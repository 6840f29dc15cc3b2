// Package cache provides Redis caching for counts and pole list pages.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/poste-inventory/backend/internal/config"
	"github.com/poste-inventory/backend/internal/models"
)

const (
	// Cache keys
	KeyUserCount  = "usuarios:count"
	KeyPosteCount = "postes:count"

	// Each namespace has a generation counter that is bumped on every write.
	// Stored keys embed the generation the value was read under, so a bump
	// orphans every entry at once, including writes that were in flight.
	generationSuffix   = ":gen"
	posteGenerationKey = "postes" + generationSuffix
	postePageKeyFormat = "postes:page:%d:%d:%d"
	countKeyFormat     = "%s:%d"
)

// NoGeneration is returned when the generation could not be read.
// Sets carrying it are dropped.
const NoGeneration int64 = -1

// PostePage is one cached page of the pole listing.
type PostePage struct {
	Postes []models.Poste `json:"postes"`
	Total  int64          `json:"total"`
}

// Cache defines the interface for caching operations.
type Cache interface {
	// GetCount retrieves a cached count and the generation it was looked up at.
	GetCount(ctx context.Context, key string) (n, gen int64, ok bool)

	// SetCount stores a count computed after a GetCount that returned gen.
	SetCount(ctx context.Context, key string, gen, n int64) error

	// GetPostePage retrieves a cached listing page and the generation it was looked up at.
	GetPostePage(ctx context.Context, page, limit int) (*PostePage, int64, bool)

	// SetPostePage stores a listing page computed after a GetPostePage that returned gen.
	SetPostePage(ctx context.Context, gen int64, page, limit int, p *PostePage) error

	// InvalidatePostes drops the pole count and every cached page.
	InvalidatePostes(ctx context.Context) error

	// InvalidateUsers drops the user count.
	InvalidateUsers(ctx context.Context) error

	// Ping checks the cache connection.
	Ping(ctx context.Context) error

	// Close closes the cache connection.
	Close() error
}

// New returns a Redis cache, or a no-op cache when REDIS_URL is empty.
func New(cfg *config.Config, logger *zap.Logger) (Cache, error) {
	if !cfg.CacheEnabled() {
		logger.Info("Redis cache disabled")
		return NoopCache{}, nil
	}
	c, err := NewRedisCache(cfg, logger)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// RedisCache implements Cache using Redis.
type RedisCache struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewRedisCache creates a new Redis cache.
func NewRedisCache(cfg *config.Config, logger *zap.Logger) (*RedisCache, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis cache")

	return newRedisCache(client, cfg.CacheTTL, logger), nil
}

func newRedisCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{client: client, logger: logger, ttl: ttl}
}

// GetCount retrieves a cached count. Errors are treated as a miss.
func (c *RedisCache) GetCount(ctx context.Context, key string) (int64, int64, bool) {
	gen, err := c.generation(ctx, generationKey(key))
	if err != nil {
		c.logger.Warn("Failed to read cache generation", zap.String("key", key), zap.Error(err))
		return 0, NoGeneration, false
	}

	k := countKey(key, gen)
	n, err := c.client.Get(ctx, k).Int64()
	if err == redis.Nil {
		return 0, gen, false
	}
	if err != nil {
		c.logger.Warn("Failed to get count from cache", zap.String("key", k), zap.Error(err))
		return 0, gen, false
	}

	c.logger.Debug("Cache hit", zap.String("key", k))
	return n, gen, true
}

// SetCount stores a count under gen. A count from an invalidated generation
// lands on a key nobody reads anymore.
func (c *RedisCache) SetCount(ctx context.Context, key string, gen, n int64) error {
	if gen < 0 {
		return nil
	}

	k := countKey(key, gen)
	if err := c.client.Set(ctx, k, n, c.ttl).Err(); err != nil {
		c.logger.Warn("Failed to set cache", zap.String("key", k), zap.Error(err))
		return err
	}
	return nil
}

func (c *RedisCache) generation(ctx context.Context, key string) (int64, error) {
	gen, err := c.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return gen, err
}

// GetPostePage retrieves a cached listing page.
func (c *RedisCache) GetPostePage(ctx context.Context, page, limit int) (*PostePage, int64, bool) {
	gen, err := c.generation(ctx, posteGenerationKey)
	if err != nil {
		c.logger.Warn("Failed to read cache generation", zap.Error(err))
		return nil, NoGeneration, false
	}

	key := pageKey(gen, page, limit)
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, gen, false
	}
	if err != nil {
		c.logger.Warn("Failed to get page from cache", zap.String("key", key), zap.Error(err))
		return nil, gen, false
	}

	var p PostePage
	if err := json.Unmarshal(data, &p); err != nil {
		c.logger.Warn("Failed to unmarshal cached page", zap.String("key", key), zap.Error(err))
		return nil, gen, false
	}

	c.logger.Debug("Cache hit", zap.String("key", key))
	return &p, gen, true
}

// SetPostePage stores a listing page under gen.
func (c *RedisCache) SetPostePage(ctx context.Context, gen int64, page, limit int, p *PostePage) error {
	if gen < 0 {
		return nil
	}

	data, err := json.Marshal(p)
	if err != nil {
		c.logger.Warn("Failed to marshal page for cache", zap.Error(err))
		return err
	}

	key := pageKey(gen, page, limit)
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("Failed to set cache", zap.String("key", key), zap.Error(err))
		return err
	}

	c.logger.Debug("Cached poste page", zap.String("key", key), zap.Int("postes", len(p.Postes)))
	return nil
}

// InvalidatePostes bumps the pole generation, dropping the count and every page.
func (c *RedisCache) InvalidatePostes(ctx context.Context) error {
	if err := c.client.Incr(ctx, posteGenerationKey).Err(); err != nil {
		c.logger.Warn("Failed to invalidate postes cache", zap.Error(err))
		return err
	}
	return nil
}

// InvalidateUsers bumps the user generation, dropping the user count.
func (c *RedisCache) InvalidateUsers(ctx context.Context) error {
	if err := c.client.Incr(ctx, generationKey(KeyUserCount)).Err(); err != nil {
		c.logger.Warn("Failed to invalidate users cache", zap.Error(err))
		return err
	}
	return nil
}

// Ping checks the Redis connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	c.logger.Info("Closing Redis connection")
	return c.client.Close()
}

// NoopCache never stores anything.
type NoopCache struct{}

func (NoopCache) GetCount(context.Context, string) (int64, int64, bool) { return 0, 0, false }

func (NoopCache) SetCount(context.Context, string, int64, int64) error { return nil }

func (NoopCache) GetPostePage(context.Context, int, int) (*PostePage, int64, bool) {
	return nil, 0, false
}

func (NoopCache) SetPostePage(context.Context, int64, int, int, *PostePage) error { return nil }

func (NoopCache) InvalidatePostes(context.Context) error { return nil }

func (NoopCache) InvalidateUsers(context.Context) error { return nil }

func (NoopCache) Ping(context.Context) error { return nil }

func (NoopCache) Close() error { return nil }

func pageKey(gen int64, page, limit int) string {
	return fmt.Sprintf(postePageKeyFormat, gen, page, limit)
}

func countKey(key string, gen int64) string {
	return fmt.Sprintf(countKeyFormat, key, gen)
}

// generationKey returns the generation counter for key's namespace.
func generationKey(key string) string {
	ns, _, _ := strings.Cut(key, ":")
	return ns + generationSuffix
}
