package service

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/postpulse/internal/db"
	"github.com/postpulse/internal/store"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

const (
	// DefaultCacheTTL 为生成文本的默认缓存时长。
	DefaultCacheTTL = 7 * 24 * time.Hour

	CacheTypeDraftScore = "draft_score"
	CacheTypeExperiment = "experiment_summary"
)

// CacheOptions 描述写入缓存时的附加信息。
type CacheOptions struct {
	WorkspaceID string
	CacheType   string
	TTL         time.Duration
}

// ResponseCache 缓存外部生成的文本。缓存只是优化，调用方必须能处理永久未命中。
type ResponseCache interface {
	Get(ctx context.Context, prompt, promptContext string) (string, bool)
	Set(ctx context.Context, prompt, promptContext, text string, opts CacheOptions) error
	ClearWorkspace(ctx context.Context, workspaceID, cacheType string) (int64, error)
}

// CacheKey 对 {prompt, context} 做 BLAKE2b-256 哈希并返回十六进制字符串。
func CacheKey(prompt, promptContext string) string {
	payload, _ := json.Marshal(struct {
		Prompt  string `json:"prompt"`
		Context string `json:"context"`
	}{Prompt: prompt, Context: promptContext})
	sum := blake2b.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// DBResponseCache 将缓存保存在关系库的 response_cache 表中。
type DBResponseCache struct {
	store  store.Cache
	logger *zap.Logger
	now    func() time.Time
}

// NewDBResponseCache 创建基于数据库的 ResponseCache。
func NewDBResponseCache(st store.Cache, logger *zap.Logger) *DBResponseCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DBResponseCache{store: st, logger: logger, now: time.Now}
}

// WithClock 允许在测试中固定当前时间。
func (c *DBResponseCache) WithClock(now func() time.Time) *DBResponseCache {
	if now != nil {
		c.now = now
	}
	return c
}

// Get 命中未过期条目时返回文本；过期条目视为未命中并顺带删除。
func (c *DBResponseCache) Get(ctx context.Context, prompt, promptContext string) (string, bool) {
	key := CacheKey(prompt, promptContext)
	entry, err := c.store.GetCacheEntry(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Warn("read response cache", zap.String("cache_key", key), zap.Error(err))
		}
		return "", false
	}

	if !entry.ExpiresAt.After(c.now()) {
		if err := c.store.DeleteCacheEntry(ctx, key); err != nil {
			c.logger.Warn("evict expired cache entry", zap.String("cache_key", key), zap.Error(err))
		}
		return "", false
	}
	return entry.ResponseText, true
}

// Set 以相同的哈希键写入或覆盖缓存条目。
func (c *DBResponseCache) Set(ctx context.Context, prompt, promptContext, text string, opts CacheOptions) error {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	entry := &db.CacheEntry{
		CacheKey:     CacheKey(prompt, promptContext),
		CacheType:    strings.TrimSpace(opts.CacheType),
		ResponseText: text,
		ExpiresAt:    c.now().Add(ttl).UTC(),
	}
	if ws := strings.TrimSpace(opts.WorkspaceID); ws != "" {
		entry.WorkspaceID = &ws
	}
	if err := c.store.UpsertCacheEntry(ctx, entry); err != nil {
		return fmt.Errorf("write response cache: %w", err)
	}
	return nil
}

// ClearWorkspace 删除工作区的缓存，cacheType 为空时删除全部类型。
func (c *DBResponseCache) ClearWorkspace(ctx context.Context, workspaceID, cacheType string) (int64, error) {
	if strings.TrimSpace(workspaceID) == "" {
		return 0, ErrWorkspaceRequired
	}
	return c.store.DeleteCacheEntries(ctx, workspaceID, strings.TrimSpace(cacheType))
}
