package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/postpulse/internal/db"
	"github.com/postpulse/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	ScoreLabelLow    = "low"
	ScoreLabelMedium = "medium"
	ScoreLabelHigh   = "high"

	baseDraftScore = 0.5

	timingFullBoost     = 0.15
	timingMissPenalty   = 0.1
	hashtagAdjustment   = 0.1
	minTopHashtagHits   = 3
	contentAdjustment   = 0.1
	lineageBoost        = 0.2
	lineageRateFloor    = 3.0
	captionExtremeShort = 50
	captionExtremeLong  = 500
	hashtagExtremeFew   = 3
	hashtagExtremeMany  = 15
)

// DraftFeatures 为评分所需的草稿特征。
type DraftFeatures struct {
	PostID               string   `json:"post_id"`
	Platform             string   `json:"platform"`
	CaptionLength        int      `json:"caption_length"`
	Hashtags             []string `json:"hashtags"`
	EmojiCount           int      `json:"emoji_count"`
	Scheduled            bool     `json:"scheduled"`
	ScheduledDay         string   `json:"scheduled_day,omitempty"`
	ScheduledHour        int      `json:"scheduled_hour"`
	RepurposedFromPostID string   `json:"repurposed_from_post_id,omitempty"`
	ContentGroupID       string   `json:"content_group_id,omitempty"`
}

// ScoringContext 汇集评分时依赖的工作区信号。
type ScoringContext struct {
	BestDay              string
	BestTimeBucket       string
	TopHashtags          []string
	Preferences          WorkspacePreferences
	Ranges               PlatformRanges
	SourceEngagementRate *float64
}

// ScoreResult 为草稿评分结果。
type ScoreResult struct {
	PostID            string             `json:"post_id"`
	Score             float64            `json:"score"`
	Label             string             `json:"label"`
	ReasoningFeatures map[string]float64 `json:"reasoning_features"`
	Explanation       string             `json:"explanation,omitempty"`
}

// ScoreLabel 将分数映射为 low / medium / high。
func ScoreLabel(score float64) string {
	switch {
	case score >= 0.7:
		return ScoreLabelHigh
	case score >= 0.4:
		return ScoreLabelMedium
	default:
		return ScoreLabelLow
	}
}

// AdjustRange 根据工作区偏好收紧或放宽平台的最佳区间。
func AdjustRange(optimal PlatformRanges, prefs WorkspacePreferences) PlatformRanges {
	adjusted := optimal
	if prefs.PrefersShortCaptions {
		adjusted.Caption.Max = max(adjusted.Caption.Min, int(math.Round(float64(adjusted.Caption.Max)*0.7)))
	}
	switch {
	case prefs.PrefersFewerHashtags:
		adjusted.Hashtags.Max = max(adjusted.Hashtags.Min, adjusted.Hashtags.Max-3)
	case prefs.PrefersMoreHashtags:
		adjusted.Hashtags.Max += 5
	}
	return adjusted
}

// ScoreDraft 是纯函数：相同的特征与上下文总是得到相同的分数与标签。
func ScoreDraft(features DraftFeatures, sc ScoringContext) ScoreResult {
	score := baseDraftScore
	reasons := map[string]float64{"base": baseDraftScore}

	if features.Scheduled && (sc.BestDay != "" || sc.BestTimeBucket != "") {
		dayMatch := sc.BestDay != "" && features.ScheduledDay == sc.BestDay
		timeMatch := sc.BestTimeBucket != "" && TimeBucketForHour(features.ScheduledHour) == sc.BestTimeBucket
		var timing float64
		switch {
		case dayMatch && timeMatch:
			timing = timingFullBoost
		case dayMatch || timeMatch:
			timing = timingFullBoost / 2
		default:
			timing = -timingMissPenalty
		}
		score += timing
		reasons["timing_alignment"] = timing
		reasons["timing_day_match"] = boolFeature(dayMatch)
		reasons["timing_time_match"] = boolFeature(timeMatch)
	}

	if len(features.Hashtags) > 0 && len(sc.TopHashtags) > 0 {
		top := make(map[string]struct{}, len(sc.TopHashtags))
		for _, name := range sc.TopHashtags {
			top[strings.ToLower(name)] = struct{}{}
		}
		hits := 0
		for _, name := range features.Hashtags {
			if _, ok := top[name]; ok {
				hits++
			}
		}
		reasons["top_hashtag_matches"] = float64(hits)
		switch {
		case hits >= minTopHashtagHits:
			score += hashtagAdjustment
			reasons["hashtag_performance"] = hashtagAdjustment
		case hits == 0:
			score -= hashtagAdjustment
			reasons["hashtag_performance"] = -hashtagAdjustment
		}
	}

	ranges := AdjustRange(sc.Ranges, sc.Preferences)
	reasons["caption_max_adjusted"] = float64(ranges.Caption.Max)
	reasons["hashtag_max_adjusted"] = float64(ranges.Hashtags.Max)

	switch {
	case ranges.Caption.Contains(features.CaptionLength):
		score += contentAdjustment
		reasons["caption_length"] = contentAdjustment
	case features.CaptionLength < captionExtremeShort || features.CaptionLength > captionExtremeLong:
		score -= contentAdjustment
		reasons["caption_length"] = -contentAdjustment
	}

	hashtagCount := len(features.Hashtags)
	switch {
	case ranges.Hashtags.Contains(hashtagCount):
		score += contentAdjustment
		reasons["hashtag_count"] = contentAdjustment
	case hashtagCount > hashtagExtremeMany || hashtagCount < hashtagExtremeFew:
		score -= contentAdjustment
		reasons["hashtag_count"] = -contentAdjustment
	}

	if sc.SourceEngagementRate != nil {
		reasons["source_engagement_rate"] = *sc.SourceEngagementRate
		if *sc.SourceEngagementRate > lineageRateFloor {
			score += lineageBoost
			reasons["lineage_boost"] = lineageBoost
		}
	}

	score = round4(clamp(score, 0, 1))
	return ScoreResult{
		PostID:            features.PostID,
		Score:             score,
		Label:             ScoreLabel(score),
		ReasoningFeatures: reasons,
	}
}

func clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

func boolFeature(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

// CountEmoji 统计常见 emoji 区段内的字符数。
func CountEmoji(text string) int {
	count := 0
	for _, r := range text {
		switch {
		case r >= 0x1F300 && r <= 0x1FAFF,
			r >= 0x2600 && r <= 0x27BF,
			r >= 0x1F1E6 && r <= 0x1F1FF,
			r >= 0x1F000 && r <= 0x1F02F:
			count++
		}
	}
	return count
}

// ScoreOptions 控制 ScorePost 的附加行为。
type ScoreOptions struct {
	Explain bool
}

// DraftScoringService 组合各引擎信号为草稿打分。
type DraftScoringService struct {
	store           store.Store
	summaries       *MetricsSummaryService
	hashtags        *HashtagAnalyticsService
	personalization *PersonalizationService
	explanation     *ExplanationService
	profile         ScoringProfile
	logger          *zap.Logger
}

// NewDraftScoringService 创建 DraftScoringService，explanation 可为空。
func NewDraftScoringService(
	st store.Store,
	summaries *MetricsSummaryService,
	hashtags *HashtagAnalyticsService,
	personalization *PersonalizationService,
	explanation *ExplanationService,
	profile ScoringProfile,
	logger *zap.Logger,
) *DraftScoringService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DraftScoringService{
		store:           st,
		summaries:       summaries,
		hashtags:        hashtags,
		personalization: personalization,
		explanation:     explanation,
		profile:         profile,
		logger:          logger,
	}
}

// ExtractFeatures 读取文章并提取评分特征，标签取文案解析结果与已关联标签的并集。
func (s *DraftScoringService) ExtractFeatures(ctx context.Context, postID string) (DraftFeatures, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return DraftFeatures{}, ErrPostNotFound
		}
		return DraftFeatures{}, fmt.Errorf("load post %s: %w", postID, err)
	}

	linked, err := s.store.PostHashtagNames(ctx, post.ID)
	if err != nil {
		s.logger.Warn("load linked hashtags", zap.String("post_id", post.ID), zap.Error(err))
	}
	return buildFeatures(*post, linked), nil
}

func buildFeatures(post db.Post, linked []string) DraftFeatures {
	hashtags := ParseHashtags(post.Caption)
	seen := make(map[string]struct{}, len(hashtags))
	for _, name := range hashtags {
		seen[name] = struct{}{}
	}
	for _, name := range linked {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		hashtags = append(hashtags, name)
	}

	features := DraftFeatures{
		PostID:        post.ID,
		Platform:      post.Platform,
		CaptionLength: utf8.RuneCountInString(post.Caption),
		Hashtags:      hashtags,
		EmojiCount:    CountEmoji(post.Caption),
	}
	if post.ScheduledFor != nil {
		scheduled := post.ScheduledFor.UTC()
		features.Scheduled = true
		features.ScheduledDay = scheduled.Weekday().String()
		features.ScheduledHour = scheduled.Hour()
	}
	if post.RepurposedFromPostID != nil {
		features.RepurposedFromPostID = *post.RepurposedFromPostID
	}
	if post.ContentGroupID != nil {
		features.ContentGroupID = *post.ContentGroupID
	}
	return features
}

// ScorePost 并行加载工作区信号，为文章打分并写回预测结果。
// 解读生成失败不会影响分数。
func (s *DraftScoringService) ScorePost(ctx context.Context, postID string, opts ScoreOptions) (ScoreResult, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ScoreResult{}, ErrPostNotFound
		}
		return ScoreResult{}, fmt.Errorf("load post %s: %w", postID, err)
	}
	linked, err := s.store.PostHashtagNames(ctx, post.ID)
	if err != nil {
		s.logger.Warn("load linked hashtags", zap.String("post_id", post.ID), zap.Error(err))
	}
	features := buildFeatures(*post, linked)

	var (
		summary  MetricsSummary
		insights HashtagInsights
		prefs    WorkspacePreferences
		lineage  *float64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		summary = s.summaries.SummarizeMetrics(gctx, post.WorkspaceID, DefaultSummaryWindowDays)
		return nil
	})
	g.Go(func() error {
		insights = s.hashtags.RankHashtags(gctx, post.WorkspaceID, DefaultSummaryWindowDays)
		return nil
	})
	g.Go(func() error {
		prefs = s.personalization.ProfilePreferences(gctx, post.WorkspaceID)
		return nil
	})
	g.Go(func() error {
		lineage = s.sourceEngagementRate(gctx, features.RepurposedFromPostID)
		return nil
	})
	_ = g.Wait()

	sc := ScoringContext{
		TopHashtags:          SuggestionNames(SuggestHashtags(insights, 20)),
		Preferences:          prefs,
		Ranges:               s.profile.RangesFor(features.Platform),
		SourceEngagementRate: lineage,
	}
	platformSummary := summary.Platform(features.Platform)
	if platformSummary != nil {
		sc.BestDay = platformSummary.BestDay
		sc.BestTimeBucket = platformSummary.BestTimeBucket
	}

	result := ScoreDraft(features, sc)

	var explanation *string
	if opts.Explain && s.explanation != nil {
		text := s.explanation.ExplainDraftScore(ctx, post.WorkspaceID, result, platformSummary)
		result.Explanation = text
		explanation = &text
	}

	if err := s.store.UpdatePostScore(ctx, post.ID, store.ScoreUpdate{
		Label:       result.Label,
		Numeric:     result.Score,
		Explanation: explanation,
	}); err != nil {
		s.logger.Warn("persist draft score", zap.String("post_id", post.ID), zap.Error(err))
	}
	return result, nil
}

func (s *DraftScoringService) sourceEngagementRate(ctx context.Context, sourceID string) *float64 {
	if sourceID == "" {
		return nil
	}
	source, err := s.store.GetPost(ctx, sourceID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("load lineage source", zap.String("post_id", sourceID), zap.Error(err))
		}
		return nil
	}
	latest, err := s.store.LatestSnapshots(ctx, []string{source.ID})
	if err != nil {
		s.logger.Warn("load lineage snapshot", zap.String("post_id", sourceID), zap.Error(err))
		return nil
	}
	snap, ok := latest[source.ID]
	if !ok {
		return nil
	}
	rate := snap.EngagementRate(source.Platform)
	return &rate
}
