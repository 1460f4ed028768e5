package db

import "time"

const (
	FeedbackAccepted      = "accepted"
	FeedbackDeleted       = "deleted"
	FeedbackHeavilyEdited = "heavily_edited"
	FeedbackLightlyEdited = "lightly_edited"
)

// FeedbackDetailsVersion 为当前写入的 FeedbackDetails 结构版本。
const FeedbackDetailsVersion = 1

// FeedbackDetails 记录写入时计算好的编辑差异指标。
type FeedbackDetails struct {
	Version             int     `json:"version"`
	LengthChangePercent float64 `json:"length_change_percent"`
	HashtagCountChange  int     `json:"hashtag_count_change"`
	EditDistancePercent float64 `json:"edit_distance_percent"`
}

// FeedbackEvent 记录用户对生成内容的接受、删除或编辑，写入后不可修改。
type FeedbackEvent struct {
	ID          uint            `gorm:"primaryKey"`
	WorkspaceID string          `gorm:"size:36;index:idx_feedback_workspace_time"`
	PostID      string          `gorm:"size:36;index"`
	Source      string          `gorm:"size:64"`
	EventType   string          `gorm:"size:32;index"`
	Details     FeedbackDetails `gorm:"serializer:json;type:text"`
	CreatedAt   time.Time       `gorm:"index:idx_feedback_workspace_time"`
}

// TableName 指定自定义表名。
func (FeedbackEvent) TableName() string {
	return "feedback_events"
}
