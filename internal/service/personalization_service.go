package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/postpulse/internal/db"
	"github.com/postpulse/internal/store"
	"go.uber.org/zap"
)

const (
	preferenceLookbackDays = 90

	EditFrequencyHigh   = "high"
	EditFrequencyMedium = "medium"
	EditFrequencyLow    = "low"

	heavyEditThreshold = 50.0
)

var profiledFeedbackTypes = []string{db.FeedbackHeavilyEdited, db.FeedbackLightlyEdited, db.FeedbackAccepted}

// WorkspacePreferences 描述从反馈事件中学到的写作偏好。
type WorkspacePreferences struct {
	WorkspaceID               string  `json:"workspace_id"`
	EventsConsidered          int     `json:"events_considered"`
	EditEvents                int     `json:"edit_events"`
	AvgLengthChangePercent    float64 `json:"avg_length_change_percent"`
	AvgAbsLengthChangePercent float64 `json:"avg_abs_length_change_percent"`
	AvgHashtagDelta           float64 `json:"avg_hashtag_delta"`
	PrefersShortCaptions      bool    `json:"prefers_short_captions"`
	PrefersFewerHashtags      bool    `json:"prefers_fewer_hashtags"`
	PrefersMoreHashtags       bool    `json:"prefers_more_hashtags"`
	EditFrequency             string  `json:"edit_frequency"`
}

// PersonalizationService 汇总反馈事件，产出工作区偏好。
type PersonalizationService struct {
	store  store.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewPersonalizationService 创建 PersonalizationService。
func NewPersonalizationService(st store.Store, logger *zap.Logger) *PersonalizationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PersonalizationService{store: st, logger: logger, now: time.Now}
}

// WithClock 允许在测试中固定当前时间。
func (s *PersonalizationService) WithClock(now func() time.Time) *PersonalizationService {
	if now != nil {
		s.now = now
	}
	return s
}

// ProfilePreferences 读取最近 90 天的编辑与接受事件并计算偏好标记。
// 没有数据或读取失败时返回全部为 false 的默认偏好。
func (s *PersonalizationService) ProfilePreferences(ctx context.Context, workspaceID string) WorkspacePreferences {
	prefs := WorkspacePreferences{WorkspaceID: workspaceID, EditFrequency: EditFrequencyLow}
	if strings.TrimSpace(workspaceID) == "" {
		return prefs
	}

	since := s.now().UTC().AddDate(0, 0, -preferenceLookbackDays)
	events, err := s.store.ListFeedback(ctx, workspaceID, since, profiledFeedbackTypes)
	if err != nil {
		s.logger.Error("load feedback events", zap.String("workspace_id", workspaceID), zap.Error(err))
		return prefs
	}
	return BuildPreferences(workspaceID, events)
}

// BuildPreferences 是 ProfilePreferences 的纯计算部分。
func BuildPreferences(workspaceID string, events []db.FeedbackEvent) WorkspacePreferences {
	prefs := WorkspacePreferences{WorkspaceID: workspaceID, EditFrequency: EditFrequencyLow}

	var (
		lengthSum    float64
		absLengthSum float64
		hashtagSum   float64
	)
	for _, event := range events {
		switch event.EventType {
		case db.FeedbackHeavilyEdited, db.FeedbackLightlyEdited:
			prefs.EditEvents++
			lengthSum += event.Details.LengthChangePercent
			absLengthSum += math.Abs(event.Details.LengthChangePercent)
			hashtagSum += float64(event.Details.HashtagCountChange)
		case db.FeedbackAccepted:
		default:
			continue
		}
		prefs.EventsConsidered++
	}

	if prefs.EventsConsidered == 0 {
		return prefs
	}

	if prefs.EditEvents > 0 {
		n := float64(prefs.EditEvents)
		prefs.AvgLengthChangePercent = lengthSum / n
		prefs.AvgAbsLengthChangePercent = absLengthSum / n
		prefs.AvgHashtagDelta = hashtagSum / n
	}
	prefs.PrefersShortCaptions = prefs.AvgLengthChangePercent < -20
	prefs.PrefersFewerHashtags = prefs.AvgHashtagDelta < -1
	prefs.PrefersMoreHashtags = prefs.AvgHashtagDelta > 1

	ratio := float64(prefs.EditEvents) / float64(prefs.EventsConsidered)
	switch {
	case ratio > 0.7:
		prefs.EditFrequency = EditFrequencyHigh
	case ratio > 0.3:
		prefs.EditFrequency = EditFrequencyMedium
	default:
		prefs.EditFrequency = EditFrequencyLow
	}
	return prefs
}

// RenderPreferences 将偏好转为提示词中使用的要点列表。
func RenderPreferences(prefs WorkspacePreferences) string {
	var lines []string
	if prefs.PrefersShortCaptions {
		lines = append(lines, fmt.Sprintf("- Prefers shorter captions (edits cut length by %.0f%% on average)", math.Abs(prefs.AvgLengthChangePercent)))
	}
	if prefs.PrefersFewerHashtags {
		lines = append(lines, fmt.Sprintf("- Prefers fewer hashtags (removes %.1f per post on average)", math.Abs(prefs.AvgHashtagDelta)))
	}
	if prefs.PrefersMoreHashtags {
		lines = append(lines, fmt.Sprintf("- Prefers more hashtags (adds %.1f per post on average)", prefs.AvgHashtagDelta))
	}
	switch prefs.EditFrequency {
	case EditFrequencyHigh:
		lines = append(lines, "- Edits most generated drafts heavily; keep suggestions close to the brand voice")
	case EditFrequencyMedium:
		lines = append(lines, "- Edits about half of generated drafts")
	default:
		lines = append(lines, "- Usually accepts generated drafts as written")
	}
	return strings.Join(lines, "\n")
}

// ClassifyEdit 根据归一化编辑距离给一次文案修改分类，并计算写入事件的差异指标。
// 几乎未改动的修改同样归为 lightly_edited，accepted 只由调用方显式上报。
func ClassifyEdit(oldCaption, newCaption string) (string, db.FeedbackDetails) {
	details := db.FeedbackDetails{
		Version:             db.FeedbackDetailsVersion,
		LengthChangePercent: lengthChangePercent(oldCaption, newCaption),
		HashtagCountChange:  len(ParseHashtags(newCaption)) - len(ParseHashtags(oldCaption)),
		EditDistancePercent: EditDistancePercent(oldCaption, newCaption),
	}

	if details.EditDistancePercent > heavyEditThreshold {
		return db.FeedbackHeavilyEdited, details
	}
	return db.FeedbackLightlyEdited, details
}

func lengthChangePercent(oldCaption, newCaption string) float64 {
	oldLen := utf8.RuneCountInString(oldCaption)
	newLen := utf8.RuneCountInString(newCaption)
	if oldLen == 0 {
		if newLen == 0 {
			return 0
		}
		return 100
	}
	return float64(newLen-oldLen) / float64(oldLen) * 100
}

// EditDistancePercent 返回 levenshtein(old,new) / max(len) * 100，两者皆空时为 0。
func EditDistancePercent(oldText, newText string) float64 {
	a := []rune(oldText)
	b := []rune(newText)
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 0
	}
	return float64(levenshtein(a, b)) / float64(longest) * 100
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// FeedbackRecorder 在编辑、发布、删除时写入反馈事件。
type FeedbackRecorder struct {
	store  store.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewFeedbackRecorder 创建 FeedbackRecorder。
func NewFeedbackRecorder(st store.Store, logger *zap.Logger) *FeedbackRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedbackRecorder{store: st, logger: logger, now: time.Now}
}

// WithClock 允许在测试中固定当前时间。
func (r *FeedbackRecorder) WithClock(now func() time.Time) *FeedbackRecorder {
	if now != nil {
		r.now = now
	}
	return r
}

// RecordEdit 比较修改前后的文案，写入 heavily_edited 或 lightly_edited 事件。
func (r *FeedbackRecorder) RecordEdit(ctx context.Context, workspaceID, postID, source, oldCaption, newCaption string) (*db.FeedbackEvent, error) {
	eventType, details := ClassifyEdit(oldCaption, newCaption)
	return r.record(ctx, workspaceID, postID, source, eventType, details)
}

// RecordAccepted 在内容未再修改即发布时写入 accepted 事件。
func (r *FeedbackRecorder) RecordAccepted(ctx context.Context, workspaceID, postID, source string) (*db.FeedbackEvent, error) {
	return r.record(ctx, workspaceID, postID, source, db.FeedbackAccepted, db.FeedbackDetails{Version: db.FeedbackDetailsVersion})
}

// RecordDeleted 在生成内容被丢弃时写入 deleted 事件。
func (r *FeedbackRecorder) RecordDeleted(ctx context.Context, workspaceID, postID, source string) (*db.FeedbackEvent, error) {
	return r.record(ctx, workspaceID, postID, source, db.FeedbackDeleted, db.FeedbackDetails{Version: db.FeedbackDetailsVersion})
}

func (r *FeedbackRecorder) record(ctx context.Context, workspaceID, postID, source, eventType string, details db.FeedbackDetails) (*db.FeedbackEvent, error) {
	workspaceID = strings.TrimSpace(workspaceID)
	postID = strings.TrimSpace(postID)
	if workspaceID == "" || postID == "" {
		return nil, ErrInvalidFeedback
	}
	source = strings.TrimSpace(source)
	if source == "" {
		source = "editor"
	}

	event := &db.FeedbackEvent{
		WorkspaceID: workspaceID,
		PostID:      postID,
		Source:      source,
		EventType:   eventType,
		Details:     details,
		CreatedAt:   r.now().UTC(),
	}
	if err := r.store.AppendFeedback(ctx, event); err != nil {
		return nil, fmt.Errorf("append feedback event: %w", err)
	}
	r.logger.Debug("recorded feedback", zap.String("post_id", postID), zap.String("event_type", eventType))
	return event, nil
}
