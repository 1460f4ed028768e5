package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/postpulse/internal/db"
	"github.com/postpulse/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultSummaryWindowDays 为滚动汇总的默认窗口。
	DefaultSummaryWindowDays = 60
	topPostsLimit            = 10
)

// TimeBuckets 将一天按 3 小时划分为固定区间，名称按时间先后排列。
var TimeBuckets = []string{"00-03", "03-06", "06-09", "09-12", "12-15", "15-18", "18-21", "21-24"}

// TimeBucketForHour 返回小时所在的时间区间。
func TimeBucketForHour(hour int) string {
	if hour < 0 || hour > 23 {
		return ""
	}
	return TimeBuckets[hour/3]
}

// MetricsSummary 汇总工作区在窗口内各平台的表现。
type MetricsSummary struct {
	WorkspaceID string            `json:"workspace_id"`
	WindowDays  int               `json:"window_days"`
	GeneratedAt time.Time         `json:"generated_at"`
	Platforms   []PlatformSummary `json:"platforms"`
}

// Platform 返回指定平台的汇总，不存在时返回 nil。
func (m MetricsSummary) Platform(platform string) *PlatformSummary {
	for i := range m.Platforms {
		if m.Platforms[i].Platform == platform {
			return &m.Platforms[i]
		}
	}
	return nil
}

// PlatformSummary 描述单个平台的滚动指标。
type PlatformSummary struct {
	Platform          string    `json:"platform"`
	PostCount         int       `json:"post_count"`
	PostsWithMetrics  int       `json:"posts_with_metrics"`
	AvgEngagementRate float64   `json:"avg_engagement_rate"`
	AvgLikes          float64   `json:"avg_likes"`
	AvgComments       float64   `json:"avg_comments"`
	AvgImpressions    float64   `json:"avg_impressions"`
	AvgViews          float64   `json:"avg_views"`
	PostsPerWeek      float64   `json:"posting_frequency"`
	BestDay           string    `json:"best_day,omitempty"`
	BestTimeBucket    string    `json:"best_time_bucket,omitempty"`
	TopPosts          []TopPost `json:"top_posts"`
}

// TopPost 描述按互动率排名的单条内容。
type TopPost struct {
	PostID         string    `json:"post_id"`
	Caption        string    `json:"caption"`
	PostedAt       time.Time `json:"posted_at"`
	Engagement     int64     `json:"engagement"`
	EngagementRate float64   `json:"engagement_rate"`
}

// MetricsSummaryService 负责把快照历史聚合为各平台的滚动汇总。
type MetricsSummaryService struct {
	store  store.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewMetricsSummaryService 创建 MetricsSummaryService。
func NewMetricsSummaryService(st store.Store, logger *zap.Logger) *MetricsSummaryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetricsSummaryService{store: st, logger: logger, now: time.Now}
}

// WithClock 允许在测试中固定当前时间。
func (s *MetricsSummaryService) WithClock(now func() time.Time) *MetricsSummaryService {
	if now != nil {
		s.now = now
	}
	return s
}

type postMetrics struct {
	post     db.Post
	snapshot db.MetricSnapshot
	hasData  bool
	rate     float64
}

// SummarizeMetrics 计算窗口内每个平台的平均互动、发帖频率与最佳发布时段。
// 读取失败时记录日志并返回空汇总。
func (s *MetricsSummaryService) SummarizeMetrics(ctx context.Context, workspaceID string, windowDays int) MetricsSummary {
	if windowDays <= 0 {
		windowDays = DefaultSummaryWindowDays
	}
	now := s.now().UTC()
	summary := MetricsSummary{
		WorkspaceID: workspaceID,
		WindowDays:  windowDays,
		GeneratedAt: now,
		Platforms:   []PlatformSummary{},
	}
	if strings.TrimSpace(workspaceID) == "" {
		return summary
	}

	since := now.AddDate(0, 0, -windowDays)
	posts, err := s.store.ListPostedSince(ctx, workspaceID, since)
	if err != nil {
		s.logger.Error("load posts for metrics summary", zap.String("workspace_id", workspaceID), zap.Error(err))
		return summary
	}
	if len(posts) == 0 {
		return summary
	}

	ids := make([]string, 0, len(posts))
	for _, post := range posts {
		ids = append(ids, post.ID)
	}
	latest, err := s.store.LatestSnapshots(ctx, ids)
	if err != nil {
		s.logger.Error("load snapshots for metrics summary", zap.String("workspace_id", workspaceID), zap.Error(err))
		return summary
	}

	grouped := make(map[string][]postMetrics)
	for _, post := range posts {
		snap, ok := latest[post.ID]
		entry := postMetrics{post: post, snapshot: snap, hasData: ok}
		if ok {
			entry.rate = snap.EngagementRate(post.Platform)
		}
		grouped[post.Platform] = append(grouped[post.Platform], entry)
	}

	platforms := orderedPlatforms(grouped)
	results := make([]PlatformSummary, len(platforms))
	g, _ := errgroup.WithContext(ctx)
	for i, platform := range platforms {
		g.Go(func() error {
			results[i] = summarizePlatform(platform, grouped[platform], windowDays)
			return nil
		})
	}
	_ = g.Wait()

	summary.Platforms = results
	return summary
}

func orderedPlatforms(grouped map[string][]postMetrics) []string {
	ordered := make([]string, 0, len(grouped))
	for _, platform := range db.Platforms {
		if _, ok := grouped[platform]; ok {
			ordered = append(ordered, platform)
		}
	}
	var extra []string
	for platform := range grouped {
		known := false
		for _, p := range db.Platforms {
			if p == platform {
				known = true
				break
			}
		}
		if !known {
			extra = append(extra, platform)
		}
	}
	sort.Strings(extra)
	return append(ordered, extra...)
}

func summarizePlatform(platform string, entries []postMetrics, windowDays int) PlatformSummary {
	summary := PlatformSummary{
		Platform:     platform,
		PostCount:    len(entries),
		PostsPerWeek: float64(len(entries)) / float64(windowDays) * 7,
		TopPosts:     []TopPost{},
	}

	var (
		rateSum     float64
		likes       int64
		comments    int64
		impressions int64
		views       int64
		dayBuckets  = newRateBuckets()
		timeBuckets = newRateBuckets()
		withMetrics []postMetrics
	)

	for _, entry := range entries {
		if !entry.hasData {
			continue
		}
		withMetrics = append(withMetrics, entry)
		rateSum += entry.rate
		likes += entry.snapshot.Likes
		comments += entry.snapshot.Comments
		impressions += entry.snapshot.Impressions
		views += entry.snapshot.Views

		if entry.post.PostedAt != nil {
			posted := entry.post.PostedAt.UTC()
			dayBuckets.add(posted.Weekday().String(), entry.rate)
			timeBuckets.add(TimeBucketForHour(posted.Hour()), entry.rate)
		}
	}

	summary.PostsWithMetrics = len(withMetrics)
	if n := float64(len(withMetrics)); n > 0 {
		summary.AvgEngagementRate = rateSum / n
		summary.AvgLikes = float64(likes) / n
		summary.AvgComments = float64(comments) / n
		summary.AvgImpressions = float64(impressions) / n
		summary.AvgViews = float64(views) / n
	}
	summary.BestDay = dayBuckets.best()
	summary.BestTimeBucket = timeBuckets.best()

	sort.SliceStable(withMetrics, func(i, j int) bool {
		if withMetrics[i].rate != withMetrics[j].rate {
			return withMetrics[i].rate > withMetrics[j].rate
		}
		return withMetrics[i].post.ID < withMetrics[j].post.ID
	})
	for i, entry := range withMetrics {
		if i >= topPostsLimit {
			break
		}
		top := TopPost{
			PostID:         entry.post.ID,
			Caption:        entry.post.Caption,
			Engagement:     entry.snapshot.Engagement(),
			EngagementRate: entry.rate,
		}
		if entry.post.PostedAt != nil {
			top.PostedAt = entry.post.PostedAt.UTC()
		}
		summary.TopPosts = append(summary.TopPosts, top)
	}

	return summary
}

type rateBuckets struct {
	sums   map[string]float64
	counts map[string]int
}

func newRateBuckets() *rateBuckets {
	return &rateBuckets{sums: map[string]float64{}, counts: map[string]int{}}
}

func (b *rateBuckets) add(name string, rate float64) {
	if name == "" {
		return
	}
	b.sums[name] += rate
	b.counts[name]++
}

// best 返回平均互动率最高的分组；平均值相同时取名称字典序最小者。
func (b *rateBuckets) best() string {
	names := make([]string, 0, len(b.counts))
	for name := range b.counts {
		names = append(names, name)
	}
	sort.Strings(names)

	best := ""
	bestAvg := 0.0
	for _, name := range names {
		avg := b.sums[name] / float64(b.counts[name])
		if best == "" || avg > bestAvg {
			best = name
			bestAvg = avg
		}
	}
	return best
}
