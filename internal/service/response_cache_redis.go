package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisCachePrefix = "postpulse:cache:"

// ConnectRedis 支持 redis:// URL 或 host:port 两种写法。
func ConnectRedis(redisURL string) (*redis.Client, error) {
	redisURL = strings.TrimSpace(redisURL)
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// RedisResponseCache 使用 Redis 键过期实现 TTL 淘汰，并维护工作区索引集合用于批量清理。
type RedisResponseCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisResponseCache 创建基于 Redis 的 ResponseCache。
func NewRedisResponseCache(client *redis.Client, logger *zap.Logger) *RedisResponseCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisResponseCache{client: client, logger: logger}
}

func redisEntryKey(key string) string {
	return redisCachePrefix + "entry:" + key
}

func redisWorkspaceIndexKey(workspaceID, cacheType string) string {
	if cacheType == "" {
		cacheType = "default"
	}
	return redisCachePrefix + "ws:" + workspaceID + ":" + cacheType
}

func (c *RedisResponseCache) Get(ctx context.Context, prompt, promptContext string) (string, bool) {
	key := CacheKey(prompt, promptContext)
	text, err := c.client.Get(ctx, redisEntryKey(key)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("read redis response cache", zap.String("cache_key", key), zap.Error(err))
		}
		return "", false
	}
	return text, true
}

func (c *RedisResponseCache) Set(ctx context.Context, prompt, promptContext, text string, opts CacheOptions) error {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	key := redisEntryKey(CacheKey(prompt, promptContext))
	workspaceID := strings.TrimSpace(opts.WorkspaceID)

	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, key, text, ttl)
		if workspaceID != "" {
			index := redisWorkspaceIndexKey(workspaceID, strings.TrimSpace(opts.CacheType))
			p.SAdd(ctx, index, key)
			p.Expire(ctx, index, ttl+time.Hour)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write redis response cache: %w", err)
	}
	return nil
}

func (c *RedisResponseCache) ClearWorkspace(ctx context.Context, workspaceID, cacheType string) (int64, error) {
	workspaceID = strings.TrimSpace(workspaceID)
	if workspaceID == "" {
		return 0, ErrWorkspaceRequired
	}

	var indexes []string
	if cacheType = strings.TrimSpace(cacheType); cacheType != "" {
		indexes = []string{redisWorkspaceIndexKey(workspaceID, cacheType)}
	} else {
		iter := c.client.Scan(ctx, 0, redisCachePrefix+"ws:"+workspaceID+":*", 100).Iterator()
		for iter.Next(ctx) {
			indexes = append(indexes, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return 0, fmt.Errorf("scan redis cache indexes: %w", err)
		}
	}

	var removed int64
	for _, index := range indexes {
		keys, err := c.client.SMembers(ctx, index).Result()
		if err != nil {
			return removed, fmt.Errorf("load redis cache index: %w", err)
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("delete redis cache entries: %w", err)
			}
			removed += n
		}
		if err := c.client.Del(ctx, index).Err(); err != nil {
			return removed, fmt.Errorf("delete redis cache index: %w", err)
		}
	}
	return removed, nil
}
