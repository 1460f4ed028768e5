package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/postpulse/internal/db"
	"github.com/postpulse/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const maxConcurrentFetches = 4

// ErrHandleRequired 表示未提供竞品账号。
var ErrHandleRequired = errors.New("competitor handle is required")

// ProfileMetrics 为平台返回的公开账号指标。
type ProfileMetrics struct {
	Followers         int64   `json:"followers"`
	AvgEngagementRate float64 `json:"avg_engagement_rate"`
}

// PlatformFetcher 拉取某个平台上公开账号的指标。
// available 为 false 表示该平台暂时无法提供数据，这不是错误。
type PlatformFetcher interface {
	Platform() string
	FetchProfileMetrics(ctx context.Context, handle string) (metrics ProfileMetrics, available bool, err error)
}

type unavailableFetcher struct {
	platform string
}

func (f unavailableFetcher) Platform() string { return f.platform }

func (f unavailableFetcher) FetchProfileMetrics(context.Context, string) (ProfileMetrics, bool, error) {
	return ProfileMetrics{}, false, nil
}

// DefaultFetchers 为每个支持的平台返回一个尚未接入数据源的 fetcher。
func DefaultFetchers() []PlatformFetcher {
	fetchers := make([]PlatformFetcher, 0, len(db.Platforms))
	for _, platform := range db.Platforms {
		fetchers = append(fetchers, unavailableFetcher{platform: platform})
	}
	return fetchers
}

// CompetitorResult 描述单个竞品账号的抓取结果。
type CompetitorResult struct {
	Handle    string          `json:"handle"`
	Available bool            `json:"available"`
	Metrics   *ProfileMetrics `json:"metrics,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// CompetitorMetricsCollector 调用对应平台的 fetcher，并在拿到数据时写入快照。
type CompetitorMetricsCollector struct {
	store    store.Competitors
	fetchers map[string]PlatformFetcher
	logger   *zap.Logger
	now      func() time.Time
}

// NewCompetitorMetricsCollector 创建采集器，fetchers 为空时使用 DefaultFetchers。
func NewCompetitorMetricsCollector(st store.Competitors, fetchers []PlatformFetcher, logger *zap.Logger) *CompetitorMetricsCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(fetchers) == 0 {
		fetchers = DefaultFetchers()
	}
	byPlatform := make(map[string]PlatformFetcher, len(fetchers))
	for _, f := range fetchers {
		byPlatform[strings.ToLower(f.Platform())] = f
	}
	return &CompetitorMetricsCollector{store: st, fetchers: byPlatform, logger: logger, now: time.Now}
}

// WithClock 允许在测试中固定当前时间。
func (c *CompetitorMetricsCollector) WithClock(now func() time.Time) *CompetitorMetricsCollector {
	if now != nil {
		c.now = now
	}
	return c
}

// Collect 抓取一组账号的指标。单个账号失败只记录在结果里，不影响其它账号。
func (c *CompetitorMetricsCollector) Collect(ctx context.Context, workspaceID, platform string, handles []string) ([]CompetitorResult, error) {
	workspaceID = strings.TrimSpace(workspaceID)
	if workspaceID == "" {
		return nil, ErrWorkspaceRequired
	}
	fetcher, ok := c.fetchers[strings.ToLower(strings.TrimSpace(platform))]
	if !ok {
		return nil, ErrUnsupportedPlatform
	}

	cleaned := make([]string, 0, len(handles))
	seen := make(map[string]struct{}, len(handles))
	for _, h := range handles {
		h = strings.TrimPrefix(strings.TrimSpace(h), "@")
		if h == "" {
			continue
		}
		if _, dup := seen[strings.ToLower(h)]; dup {
			continue
		}
		seen[strings.ToLower(h)] = struct{}{}
		cleaned = append(cleaned, h)
	}
	if len(cleaned) == 0 {
		return nil, ErrHandleRequired
	}

	results := make([]CompetitorResult, len(cleaned))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for i, handle := range cleaned {
		g.Go(func() error {
			results[i] = c.collectOne(gctx, workspaceID, fetcher, handle)
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

func (c *CompetitorMetricsCollector) collectOne(ctx context.Context, workspaceID string, fetcher PlatformFetcher, handle string) CompetitorResult {
	result := CompetitorResult{Handle: handle}
	metrics, available, err := fetcher.FetchProfileMetrics(ctx, handle)
	if err != nil {
		c.logger.Warn("fetch competitor metrics",
			zap.String("platform", fetcher.Platform()),
			zap.String("handle", handle),
			zap.Error(err),
		)
		result.Error = err.Error()
		return result
	}
	if !available {
		return result
	}

	result.Available = true
	result.Metrics = &metrics
	snap := &db.CompetitorSnapshot{
		WorkspaceID:       workspaceID,
		Platform:          fetcher.Platform(),
		Handle:            handle,
		CapturedAt:        c.now().UTC(),
		Followers:         metrics.Followers,
		AvgEngagementRate: metrics.AvgEngagementRate,
	}
	if err := c.store.AppendCompetitorSnapshot(ctx, snap); err != nil {
		c.logger.Warn("store competitor snapshot", zap.String("handle", handle), zap.Error(err))
		result.Error = fmt.Sprintf("store snapshot: %v", err)
	}
	return result
}
