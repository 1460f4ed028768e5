package service

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/postpulse/internal/db"
	"github.com/postpulse/internal/store"
	"go.uber.org/zap"
)

const (
	hashtagRankingLimit = 10
	// minUsageForEngagementRank 排除只出现过一次的标签，避免单样本噪声。
	minUsageForEngagementRank = 2
	// suggestionRateTolerance 为互动率差值（百分点）小于该值时改用使用次数决胜。
	suggestionRateTolerance = 0.5
)

// HashtagMetrics 描述单个标签在窗口内的表现。
type HashtagMetrics struct {
	Name              string  `json:"name"`
	UsageCount        int     `json:"usage_count"`
	PostsWithMetrics  int     `json:"posts_with_metrics"`
	TotalImpressions  int64   `json:"total_impressions"`
	TotalViews        int64   `json:"total_views"`
	TotalLikes        int64   `json:"total_likes"`
	TotalComments     int64   `json:"total_comments"`
	TotalShares       int64   `json:"total_shares"`
	TotalSaves        int64   `json:"total_saves"`
	AvgImpressions    float64 `json:"avg_impressions"`
	AvgViews          float64 `json:"avg_views"`
	AvgLikes          float64 `json:"avg_likes"`
	AvgComments       float64 `json:"avg_comments"`
	AvgShares         float64 `json:"avg_shares"`
	AvgSaves          float64 `json:"avg_saves"`
	AvgEngagementRate float64 `json:"avg_engagement_rate"`
}

// HashtagInsights 汇总标签排名视图。
type HashtagInsights struct {
	WorkspaceID      string           `json:"workspace_id"`
	WindowDays       int              `json:"window_days"`
	TotalHashtags    int              `json:"total_hashtags"`
	Hashtags         []HashtagMetrics `json:"hashtags"`
	TopByUsage       []HashtagMetrics `json:"top_by_usage"`
	TopByEngagement  []HashtagMetrics `json:"top_by_engagement"`
	TopByImpressions []HashtagMetrics `json:"top_by_impressions"`
}

// HashtagSuggestion 为推荐使用的标签。
type HashtagSuggestion struct {
	Name              string  `json:"name"`
	UsageCount        int     `json:"usage_count"`
	AvgEngagementRate float64 `json:"avg_engagement_rate"`
}

// HashtagAnalyticsService 负责把标签与文章快照关联并排名。
type HashtagAnalyticsService struct {
	store  store.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewHashtagAnalyticsService 创建 HashtagAnalyticsService。
func NewHashtagAnalyticsService(st store.Store, logger *zap.Logger) *HashtagAnalyticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HashtagAnalyticsService{store: st, logger: logger, now: time.Now}
}

// WithClock 允许在测试中固定当前时间。
func (s *HashtagAnalyticsService) WithClock(now func() time.Time) *HashtagAnalyticsService {
	if now != nil {
		s.now = now
	}
	return s
}

func emptyHashtagInsights(workspaceID string, windowDays int) HashtagInsights {
	return HashtagInsights{
		WorkspaceID:      workspaceID,
		WindowDays:       windowDays,
		Hashtags:         []HashtagMetrics{},
		TopByUsage:       []HashtagMetrics{},
		TopByEngagement:  []HashtagMetrics{},
		TopByImpressions: []HashtagMetrics{},
	}
}

// RankHashtags 统计窗口内已发布文章引用的标签，并生成三个排名视图。
// 读取失败时记录日志并返回空结果。
func (s *HashtagAnalyticsService) RankHashtags(ctx context.Context, workspaceID string, windowDays int) HashtagInsights {
	if windowDays <= 0 {
		windowDays = DefaultSummaryWindowDays
	}
	insights := emptyHashtagInsights(workspaceID, windowDays)
	if strings.TrimSpace(workspaceID) == "" {
		return insights
	}

	since := s.now().UTC().AddDate(0, 0, -windowDays)
	rows, err := s.store.ListHashtagUsage(ctx, workspaceID, since)
	if err != nil {
		s.logger.Error("load hashtag usage", zap.String("workspace_id", workspaceID), zap.Error(err))
		return insights
	}
	if len(rows) == 0 {
		return insights
	}

	postIDs := make([]string, 0, len(rows))
	seenPost := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if _, ok := seenPost[row.PostID]; ok {
			continue
		}
		seenPost[row.PostID] = struct{}{}
		postIDs = append(postIDs, row.PostID)
	}
	latest, err := s.store.LatestSnapshots(ctx, postIDs)
	if err != nil {
		s.logger.Error("load snapshots for hashtag ranking", zap.String("workspace_id", workspaceID), zap.Error(err))
		return insights
	}

	insights.Hashtags = aggregateHashtags(rows, latest)
	insights.TotalHashtags = len(insights.Hashtags)
	insights.TopByUsage = rankHashtags(insights.Hashtags, nil, func(a, b HashtagMetrics) bool {
		if a.UsageCount != b.UsageCount {
			return a.UsageCount > b.UsageCount
		}
		return a.AvgEngagementRate > b.AvgEngagementRate
	})
	insights.TopByEngagement = rankHashtags(insights.Hashtags, func(m HashtagMetrics) bool {
		return m.UsageCount >= minUsageForEngagementRank
	}, func(a, b HashtagMetrics) bool {
		return a.AvgEngagementRate > b.AvgEngagementRate
	})
	insights.TopByImpressions = rankHashtags(insights.Hashtags, nil, func(a, b HashtagMetrics) bool {
		return a.AvgImpressions > b.AvgImpressions
	})
	return insights
}

type hashtagAccumulator struct {
	metrics HashtagMetrics
	rateSum float64
}

func aggregateHashtags(rows []store.HashtagUsageRow, latest map[string]db.MetricSnapshot) []HashtagMetrics {
	order := make([]string, 0)
	acc := make(map[string]*hashtagAccumulator)
	for _, row := range rows {
		a, ok := acc[row.Name]
		if !ok {
			a = &hashtagAccumulator{metrics: HashtagMetrics{Name: row.Name}}
			acc[row.Name] = a
			order = append(order, row.Name)
		}
		a.metrics.UsageCount++

		snap, ok := latest[row.PostID]
		if !ok {
			continue
		}
		a.metrics.PostsWithMetrics++
		a.metrics.TotalImpressions += snap.Impressions
		a.metrics.TotalViews += snap.Views
		a.metrics.TotalLikes += snap.Likes
		a.metrics.TotalComments += snap.Comments
		a.metrics.TotalShares += snap.Shares
		a.metrics.TotalSaves += snap.Saves
		a.rateSum += snap.EngagementRate(row.Platform)
	}

	result := make([]HashtagMetrics, 0, len(order))
	for _, name := range order {
		a := acc[name]
		m := a.metrics
		if n := float64(m.PostsWithMetrics); n > 0 {
			m.AvgImpressions = float64(m.TotalImpressions) / n
			m.AvgViews = float64(m.TotalViews) / n
			m.AvgLikes = float64(m.TotalLikes) / n
			m.AvgComments = float64(m.TotalComments) / n
			m.AvgShares = float64(m.TotalShares) / n
			m.AvgSaves = float64(m.TotalSaves) / n
			m.AvgEngagementRate = a.rateSum / n
		}
		result = append(result, m)
	}
	return result
}

func rankHashtags(all []HashtagMetrics, keep func(HashtagMetrics) bool, better func(a, b HashtagMetrics) bool) []HashtagMetrics {
	ranked := make([]HashtagMetrics, 0, len(all))
	for _, m := range all {
		if keep == nil || keep(m) {
			ranked = append(ranked, m)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if better(ranked[i], ranked[j]) {
			return true
		}
		if better(ranked[j], ranked[i]) {
			return false
		}
		return ranked[i].Name < ranked[j].Name
	})
	if len(ranked) > hashtagRankingLimit {
		ranked = ranked[:hashtagRankingLimit]
	}
	return ranked
}

// SuggestHashtags 以互动率榜为主序，相邻两项互动率相差不足 0.5 个百分点时使用次数多者在前；
// 仅出现在使用次数榜的标签按原顺序追加在后，只用过一次的不计入。
func SuggestHashtags(insights HashtagInsights, limit int) []HashtagSuggestion {
	if limit <= 0 {
		limit = hashtagRankingLimit
	}

	seen := make(map[string]struct{})
	dedupe := func(list []HashtagMetrics) []HashtagMetrics {
		out := make([]HashtagMetrics, 0, len(list))
		for _, m := range list {
			if _, ok := seen[m.Name]; ok || m.UsageCount < minUsageForEngagementRank {
				continue
			}
			seen[m.Name] = struct{}{}
			out = append(out, m)
		}
		return out
	}

	merged := dedupe(insights.TopByEngagement)
	for i := 1; i < len(merged); i++ {
		for j := i; j > 0 && usageWinsCloseRate(merged[j], merged[j-1]); j-- {
			merged[j], merged[j-1] = merged[j-1], merged[j]
		}
	}
	merged = append(merged, dedupe(insights.TopByUsage)...)

	if len(merged) > limit {
		merged = merged[:limit]
	}
	suggestions := make([]HashtagSuggestion, 0, len(merged))
	for _, m := range merged {
		suggestions = append(suggestions, HashtagSuggestion{
			Name:              m.Name,
			UsageCount:        m.UsageCount,
			AvgEngagementRate: m.AvgEngagementRate,
		})
	}
	return suggestions
}

// usageWinsCloseRate 报告 a 是否应排在紧邻的 b 之前。
func usageWinsCloseRate(a, b HashtagMetrics) bool {
	return math.Abs(a.AvgEngagementRate-b.AvgEngagementRate) < suggestionRateTolerance &&
		a.UsageCount > b.UsageCount
}

// SuggestionNames 返回建议标签的名称列表。
func SuggestionNames(suggestions []HashtagSuggestion) []string {
	names := make([]string, 0, len(suggestions))
	for _, s := range suggestions {
		names = append(names, s.Name)
	}
	return names
}
