package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	stdhtml "html"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	"go.uber.org/zap"
)

// ExplanationUnavailable 是生成失败时写入的占位文本。
const ExplanationUnavailable = "explanation unavailable"

const defaultExplanationSystemPrompt = `You are a social media analyst. Explain the numbers you are given to a marketer in two or three short sentences of plain English.
Only use the figures provided. Do not invent metrics, do not promise results, and do not use headings.`

const maxExplanationRunes = 1200

var explanationMarkdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM, extension.Linkify),
	goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML()),
)

// ExplanationService 把评分和实验结果交给 TextGenerator 生成说明，并做缓存与清洗。
type ExplanationService struct {
	generator TextGenerator
	cache     ResponseCache
	settings  *SystemSettingService
	ttl       time.Duration
	strict    *bluemonday.Policy
	ugc       *bluemonday.Policy
	logger    *zap.Logger
}

// NewExplanationService 创建 ExplanationService，cache 可为空。
func NewExplanationService(generator TextGenerator, cache ResponseCache, logger *zap.Logger) *ExplanationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExplanationService{
		generator: generator,
		cache:     cache,
		ttl:       DefaultCacheTTL,
		strict:    bluemonday.StrictPolicy(),
		ugc:       bluemonday.UGCPolicy(),
		logger:    logger,
	}
}

// WithSettings 使用系统设置中的提示词覆盖默认提示词。
func (s *ExplanationService) WithSettings(settings *SystemSettingService) *ExplanationService {
	s.settings = settings
	return s
}

// WithTTL 设置缓存时长。
func (s *ExplanationService) WithTTL(ttl time.Duration) *ExplanationService {
	if ttl > 0 {
		s.ttl = ttl
	}
	return s
}

// ExplainDraftScore 生成草稿评分的说明。
func (s *ExplanationService) ExplainDraftScore(ctx context.Context, workspaceID string, result ScoreResult, summary *PlatformSummary) string {
	type summaryContext struct {
		Platform          string  `json:"platform"`
		AvgEngagementRate float64 `json:"avg_engagement_rate"`
		BestDay           string  `json:"best_day,omitempty"`
		BestTimeBucket    string  `json:"best_time_bucket,omitempty"`
	}
	payload := struct {
		Score    float64         `json:"score"`
		Label    string          `json:"label"`
		Features []featureValue  `json:"features"`
		Summary  *summaryContext `json:"summary,omitempty"`
	}{
		Score:    result.Score,
		Label:    result.Label,
		Features: sortedFeatures(result.ReasoningFeatures),
	}
	if summary != nil {
		payload.Summary = &summaryContext{
			Platform:          summary.Platform,
			AvgEngagementRate: round4(summary.AvgEngagementRate),
			BestDay:           summary.BestDay,
			BestTimeBucket:    summary.BestTimeBucket,
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "A draft post scored %.2f (%s) on a 0 to 1 engagement prediction scale.\n", result.Score, result.Label)
	b.WriteString("Scoring factors:\n")
	for _, f := range payload.Features {
		fmt.Fprintf(&b, "- %s: %.4g\n", f.Name, f.Value)
	}
	if payload.Summary != nil {
		fmt.Fprintf(&b, "Workspace history on %s: average engagement rate %.2f%%", payload.Summary.Platform, payload.Summary.AvgEngagementRate)
		if payload.Summary.BestDay != "" {
			fmt.Fprintf(&b, ", best day %s", payload.Summary.BestDay)
		}
		if payload.Summary.BestTimeBucket != "" {
			fmt.Fprintf(&b, ", best time %s UTC", payload.Summary.BestTimeBucket)
		}
		b.WriteString(".\n")
	}
	b.WriteString("Explain why the draft received this score and what would most improve it.")

	return s.explain(ctx, CacheOptions{WorkspaceID: workspaceID, CacheType: CacheTypeDraftScore}, payload, b.String())
}

// ExplainExperiment 生成实验结果的总结。
func (s *ExplanationService) ExplainExperiment(ctx context.Context, results ExperimentResults) string {
	type variantContext struct {
		Label          string  `json:"label"`
		Impressions    int64   `json:"impressions"`
		Engagement     int64   `json:"engagement"`
		EngagementRate float64 `json:"engagement_rate"`
	}
	variants := make([]variantContext, 0, len(results.Variants))
	for _, v := range results.Variants {
		variants = append(variants, variantContext{
			Label:          v.Label,
			Impressions:    v.Impressions,
			Engagement:     v.Engagement,
			EngagementRate: round4(v.EngagementRate),
		})
	}
	payload := struct {
		Variants      []variantContext `json:"variants"`
		Winner        string           `json:"winner,omitempty"`
		Reason        string           `json:"reason"`
		MarginPercent float64          `json:"margin_percent"`
	}{
		Variants:      variants,
		Winner:        results.WinnerLabel,
		Reason:        results.WinnerReason,
		MarginPercent: round4(results.MarginPercent),
	}

	var b strings.Builder
	b.WriteString("An A/B test compared these post variants:\n")
	for _, v := range variants {
		fmt.Fprintf(&b, "- Variant %s: %d impressions, %d engagements, %.2f%% engagement rate\n", v.Label, v.Impressions, v.Engagement, v.EngagementRate)
	}
	if payload.Winner != "" {
		fmt.Fprintf(&b, "Variant %s won by %.1f%%.\n", payload.Winner, payload.MarginPercent)
	}
	fmt.Fprintf(&b, "Verdict: %s\n", payload.Reason)
	b.WriteString("Summarise the outcome and suggest what to test next.")

	return s.explain(ctx, CacheOptions{WorkspaceID: results.WorkspaceID, CacheType: CacheTypeExperiment}, payload, b.String())
}

// RenderHTML 将说明文本按 Markdown 渲染为经过清洗的 HTML。
func (s *ExplanationService) RenderHTML(text string) (string, error) {
	var buf bytes.Buffer
	if err := explanationMarkdown.Convert([]byte(text), &buf); err != nil {
		return "", err
	}
	return string(s.ugc.SanitizeBytes(buf.Bytes())), nil
}

func (s *ExplanationService) explain(ctx context.Context, opts CacheOptions, payload any, userPrompt string) string {
	if s.generator == nil {
		return ExplanationUnavailable
	}

	systemPrompt := s.systemPrompt()
	encoded, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("encode explanation context", zap.Error(err))
		return ExplanationUnavailable
	}
	promptContext := opts.CacheType + ":" + string(encoded)

	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, systemPrompt, promptContext); ok {
			return cached
		}
	}

	text, err := s.generator.Generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		s.logger.Warn("generate explanation",
			zap.String("workspace_id", opts.WorkspaceID),
			zap.String("cache_type", opts.CacheType),
			zap.Error(err),
		)
		return ExplanationUnavailable
	}

	text = s.clean(text)
	if text == "" {
		return ExplanationUnavailable
	}

	if s.cache != nil {
		opts.TTL = s.ttl
		if err := s.cache.Set(ctx, systemPrompt, promptContext, text, opts); err != nil {
			s.logger.Warn("cache explanation", zap.String("workspace_id", opts.WorkspaceID), zap.Error(err))
		}
	}
	return text
}

func (s *ExplanationService) systemPrompt() string {
	if s.settings == nil {
		return defaultExplanationSystemPrompt
	}
	settings, err := s.settings.GetSettings()
	if err != nil {
		s.logger.Warn("load explanation prompt", zap.Error(err))
		return defaultExplanationSystemPrompt
	}
	if prompt := strings.TrimSpace(settings.ExplanationPrompt); prompt != "" {
		return prompt
	}
	return defaultExplanationSystemPrompt
}

// clean 去掉模型输出中的 HTML 标签并限制长度，保存为纯文本。
func (s *ExplanationService) clean(text string) string {
	cleaned := strings.TrimSpace(stdhtml.UnescapeString(s.strict.Sanitize(text)))
	runes := []rune(cleaned)
	if len(runes) > maxExplanationRunes {
		cleaned = strings.TrimSpace(string(runes[:maxExplanationRunes])) + "…"
	}
	return cleaned
}

type featureValue struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

func sortedFeatures(features map[string]float64) []featureValue {
	out := make([]featureValue, 0, len(features))
	for name, value := range features {
		out = append(out, featureValue{Name: name, Value: round4(value)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
