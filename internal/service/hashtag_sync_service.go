package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/postpulse/internal/store"
	"go.uber.org/zap"
)

// HashtagSyncService 在文案变更后重新解析标签并替换文章关联。
type HashtagSyncService struct {
	store  store.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewHashtagSyncService 创建 HashtagSyncService。
func NewHashtagSyncService(st store.Store, logger *zap.Logger) *HashtagSyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HashtagSyncService{store: st, logger: logger, now: time.Now}
}

// WithClock 允许在测试中固定当前时间。
func (s *HashtagSyncService) WithClock(now func() time.Time) *HashtagSyncService {
	if now != nil {
		s.now = now
	}
	return s
}

// SyncPostHashtags 首次出现的标签会被创建，已存在的标签刷新 last_used_at，
// 文章原有的关联整体替换为本次解析结果。
func (s *HashtagSyncService) SyncPostHashtags(ctx context.Context, postID string) ([]string, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, fmt.Errorf("load post %s: %w", postID, err)
	}

	names := ParseHashtags(post.Caption)
	if err := s.store.ReplacePostHashtags(ctx, post.WorkspaceID, post.ID, names, s.now().UTC()); err != nil {
		return nil, fmt.Errorf("replace hashtags for post %s: %w", postID, err)
	}
	s.logger.Debug("synced post hashtags", zap.String("post_id", postID), zap.Int("count", len(names)))
	return names, nil
}
