package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/postpulse/internal/db"
	"github.com/postpulse/internal/store"
	"go.uber.org/zap"
)

const (
	minExperimentPosts       = 2
	winnerImpressionsFloor   = 500
	winnerMarginPercentFloor = 10.0
)

var variantLabels = []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J"}

// CreateExperimentInput 描述创建实验所需的参数。
type CreateExperimentInput struct {
	WorkspaceID string
	Name        string
	Type        string
	PostIDs     []string
}

// VariantResult 为单个变体（一条文章）的最新指标。
type VariantResult struct {
	Label          string  `json:"label"`
	PostID         string  `json:"post_id"`
	Platform       string  `json:"platform"`
	HasData        bool    `json:"has_data"`
	Impressions    int64   `json:"impressions"`
	Views          int64   `json:"views"`
	Likes          int64   `json:"likes"`
	Comments       int64   `json:"comments"`
	Shares         int64   `json:"shares"`
	Saves          int64   `json:"saves"`
	Engagement     int64   `json:"engagement"`
	EngagementRate float64 `json:"engagement_rate"`
}

// ExperimentResults 汇总实验各变体表现及胜出判定。
type ExperimentResults struct {
	ExperimentID      string          `json:"experiment_id"`
	WorkspaceID       string          `json:"workspace_id"`
	Status            string          `json:"status"`
	Variants          []VariantResult `json:"variants"`
	TotalImpressions  int64           `json:"total_impressions"`
	TotalEngagement   int64           `json:"total_engagement"`
	AvgEngagementRate float64         `json:"avg_engagement_rate"`
	WinnerLabel       string          `json:"winner_variant_label,omitempty"`
	WinnerReason      string          `json:"winner_reason"`
	Margin            float64         `json:"margin"`
	MarginPercent     float64         `json:"margin_percent"`
}

// HasWinner 表示是否判定出胜出变体。
func (r ExperimentResults) HasWinner() bool {
	return r.WinnerLabel != ""
}

// ExperimentService 负责实验创建、变体分配与结果判定。
type ExperimentService struct {
	store       store.Store
	explanation *ExplanationService
	logger      *zap.Logger
}

// NewExperimentService 创建 ExperimentService，explanation 为空时不生成解读。
func NewExperimentService(st store.Store, explanation *ExplanationService, logger *zap.Logger) *ExperimentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExperimentService{store: st, explanation: explanation, logger: logger}
}

// AssignVariants 按文章 ID 字典序分配变体标签，结果只取决于 ID 集合。
// 前 10 个依次为 A..J，之后复用字母并追加 index/10 后缀，例如 A1、B1。
func AssignVariants(postIDs []string) map[string]string {
	ids := uniqueTrimmed(postIDs)
	sort.Strings(ids)

	labels := make(map[string]string, len(ids))
	for i, id := range ids {
		label := variantLabels[i%len(variantLabels)]
		if i >= len(variantLabels) {
			label += strconv.Itoa(i / len(variantLabels))
		}
		labels[id] = label
	}
	return labels
}

func uniqueTrimmed(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}

// CreateExperiment 校验候选文章并在一个事务中写入实验与变体标签，返回实际写入的文章到标签映射。
func (s *ExperimentService) CreateExperiment(ctx context.Context, input CreateExperimentInput) (*db.Experiment, map[string]string, error) {
	workspaceID := strings.TrimSpace(input.WorkspaceID)
	if workspaceID == "" {
		return nil, nil, ErrWorkspaceRequired
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, nil, ErrExperimentNameRequired
	}
	ids := uniqueTrimmed(input.PostIDs)
	if len(ids) < minExperimentPosts {
		return nil, nil, ErrExperimentTooFewPosts
	}

	posts, err := s.store.ListPostsByIDs(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("load experiment posts: %w", err)
	}
	byID := make(map[string]db.Post, len(posts))
	for _, post := range posts {
		byID[post.ID] = post
	}
	for _, id := range ids {
		post, ok := byID[id]
		if !ok || post.WorkspaceID != workspaceID {
			return nil, nil, fmt.Errorf("%w: %s", ErrPostNotFound, id)
		}
		if post.ExperimentID != nil && *post.ExperimentID != "" {
			return nil, nil, fmt.Errorf("%w: %s", ErrPostInExperiment, id)
		}
	}

	exp := &db.Experiment{
		WorkspaceID: workspaceID,
		Name:        name,
		Type:        strings.TrimSpace(input.Type),
		Status:      db.ExperimentRunning,
	}
	variants := AssignVariants(ids)
	if err := s.store.CreateExperiment(ctx, exp, variants); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, nil, ErrPostInExperiment
		}
		return nil, nil, fmt.Errorf("create experiment: %w", err)
	}

	s.logger.Info("experiment created",
		zap.String("experiment_id", exp.ID),
		zap.String("workspace_id", workspaceID),
		zap.Int("variants", len(ids)),
	)
	return exp, variants, nil
}

// ComputeExperimentResults 读取各变体最新快照并应用胜出规则，不修改任何状态，可重复调用。
func (s *ExperimentService) ComputeExperimentResults(ctx context.Context, experimentID string) (ExperimentResults, error) {
	exp, err := s.store.GetExperiment(ctx, experimentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ExperimentResults{}, ErrExperimentNotFound
		}
		return ExperimentResults{}, fmt.Errorf("load experiment %s: %w", experimentID, err)
	}

	results := ExperimentResults{
		ExperimentID: exp.ID,
		WorkspaceID:  exp.WorkspaceID,
		Status:       exp.Status,
		Variants:     []VariantResult{},
	}

	posts, err := s.store.ListExperimentPosts(ctx, exp.ID)
	if err != nil {
		s.logger.Error("load experiment posts", zap.String("experiment_id", exp.ID), zap.Error(err))
		results.WinnerReason = insufficientDataReason
		return results, nil
	}
	ids := make([]string, 0, len(posts))
	for _, post := range posts {
		ids = append(ids, post.ID)
	}
	latest, err := s.store.LatestSnapshots(ctx, ids)
	if err != nil {
		s.logger.Error("load experiment snapshots", zap.String("experiment_id", exp.ID), zap.Error(err))
		latest = map[string]db.MetricSnapshot{}
	}

	variants := make([]VariantResult, 0, len(posts))
	for _, post := range posts {
		snap, ok := latest[post.ID]
		label := ""
		if post.VariantLabel != nil {
			label = *post.VariantLabel
		}
		variants = append(variants, VariantResult{
			Label:          label,
			PostID:         post.ID,
			Platform:       post.Platform,
			HasData:        ok,
			Impressions:    snap.Impressions,
			Views:          snap.Views,
			Likes:          snap.Likes,
			Comments:       snap.Comments,
			Shares:         snap.Shares,
			Saves:          snap.Saves,
			Engagement:     snap.Engagement(),
			EngagementRate: snap.EngagementRate(post.Platform),
		})
	}

	return EvaluateVariants(results, variants), nil
}

const insufficientDataReason = "Insufficient data: at least 500 total impressions across two or more variants are needed to pick a winner."

// EvaluateVariants 聚合变体指标并应用胜出规则。
func EvaluateVariants(results ExperimentResults, variants []VariantResult) ExperimentResults {
	sort.SliceStable(variants, func(i, j int) bool {
		return variants[i].Label < variants[j].Label
	})
	results.Variants = variants
	results.TotalImpressions = 0
	results.TotalEngagement = 0
	results.AvgEngagementRate = 0
	results.WinnerLabel = ""
	results.Margin = 0
	results.MarginPercent = 0

	withData := make([]VariantResult, 0, len(variants))
	var rateSum float64
	for _, v := range variants {
		results.TotalImpressions += v.Impressions
		results.TotalEngagement += v.Engagement
		rateSum += v.EngagementRate
		if v.HasData {
			withData = append(withData, v)
		}
	}
	if len(variants) > 0 {
		results.AvgEngagementRate = rateSum / float64(len(variants))
	}

	if results.TotalImpressions < winnerImpressionsFloor || len(withData) < 2 {
		results.WinnerReason = insufficientDataReason
		return results
	}

	sort.SliceStable(withData, func(i, j int) bool {
		if withData[i].EngagementRate != withData[j].EngagementRate {
			return withData[i].EngagementRate > withData[j].EngagementRate
		}
		return withData[i].Label < withData[j].Label
	})
	top, second := withData[0], withData[1]
	results.Margin = top.EngagementRate - second.EngagementRate
	if second.EngagementRate > 0 {
		results.MarginPercent = results.Margin / second.EngagementRate * 100
	}

	switch {
	case results.MarginPercent >= winnerMarginPercentFloor:
		results.WinnerLabel = top.Label
		results.WinnerReason = fmt.Sprintf(
			"Variant %s won with a %.2f%% engagement rate versus %.2f%% for variant %s, a %.1f%% relative lift.",
			top.Label, top.EngagementRate, second.EngagementRate, second.Label, results.MarginPercent,
		)
	case results.Margin > 0:
		results.WinnerLabel = top.Label
		results.WinnerReason = fmt.Sprintf(
			"Variant %s performed slightly higher (%.2f%% vs %.2f%% engagement rate); the lead is under 10%%.",
			top.Label, top.EngagementRate, second.EngagementRate,
		)
	default:
		results.WinnerReason = fmt.Sprintf(
			"Variants performed similarly (top rate %.2f%%); no winner declared.", top.EngagementRate,
		)
	}
	return results
}

// CompleteExperiment 在判定出胜出变体后将实验标记为 completed。
func (s *ExperimentService) CompleteExperiment(ctx context.Context, experimentID string) (ExperimentResults, error) {
	results, err := s.ComputeExperimentResults(ctx, experimentID)
	if err != nil {
		return results, err
	}
	if results.Status == db.ExperimentCancelled {
		return results, ErrExperimentClosed
	}
	if !results.HasWinner() {
		return results, nil
	}

	winner := results.WinnerLabel
	reason := results.WinnerReason
	if err := s.store.UpdateExperiment(ctx, experimentID, store.ExperimentUpdate{
		Status:             db.ExperimentCompleted,
		WinnerVariantLabel: &winner,
		WinnerReason:       &reason,
	}); err != nil {
		return results, fmt.Errorf("complete experiment %s: %w", experimentID, err)
	}
	results.Status = db.ExperimentCompleted
	return results, nil
}

// CancelExperiment 取消实验并释放其关联文章。
func (s *ExperimentService) CancelExperiment(ctx context.Context, experimentID string) error {
	exp, err := s.store.GetExperiment(ctx, experimentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrExperimentNotFound
		}
		return fmt.Errorf("load experiment %s: %w", experimentID, err)
	}
	if exp.Status == db.ExperimentCompleted || exp.Status == db.ExperimentCancelled {
		return ErrExperimentClosed
	}
	if err := s.store.CancelExperiment(ctx, experimentID); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return ErrExperimentClosed
		}
		return fmt.Errorf("cancel experiment %s: %w", experimentID, err)
	}
	return nil
}

// ExplainExperiment 生成并保存实验结果的自然语言总结，生成失败时保存占位文本。
func (s *ExperimentService) ExplainExperiment(ctx context.Context, experimentID string) (string, error) {
	results, err := s.ComputeExperimentResults(ctx, experimentID)
	if err != nil {
		return "", err
	}

	summary := ExplanationUnavailable
	if s.explanation != nil {
		summary = s.explanation.ExplainExperiment(ctx, results)
	}
	if err := s.store.UpdateExperiment(ctx, experimentID, store.ExperimentUpdate{Summary: &summary}); err != nil {
		s.logger.Warn("persist experiment summary", zap.String("experiment_id", experimentID), zap.Error(err))
	}
	return summary, nil
}
