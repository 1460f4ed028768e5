package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	PlatformInstagram = "instagram"
	PlatformTikTok    = "tiktok"
	PlatformLinkedIn  = "linkedin"
)

// Platforms 列出支持的发布平台，顺序即展示顺序。
var Platforms = []string{PlatformInstagram, PlatformTikTok, PlatformLinkedIn}

// Post 定义了工作区内的一条社交内容（草稿或已发布）。
type Post struct {
	ID                        string `gorm:"primaryKey;size:36"`
	WorkspaceID               string `gorm:"size:36;index;not null"`
	Platform                  string `gorm:"size:32;index;not null"`
	Caption                   string `gorm:"type:text"`
	ScheduledFor              *time.Time
	PostedAt                  *time.Time `gorm:"index"`
	ExperimentID              *string    `gorm:"size:36;index"`
	VariantLabel              *string    `gorm:"size:8"`
	PredictedScoreLabel       *string    `gorm:"size:16"`
	PredictedScoreNumeric     *float64
	PredictedScoreExplanation *string   `gorm:"type:text"`
	RepurposedFromPostID      *string   `gorm:"size:36;index"`
	ContentGroupID            *string   `gorm:"size:36;index"`
	Hashtags                  []Hashtag `gorm:"many2many:post_hashtags;"`
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

// BeforeCreate 在未指定主键时生成 UUID。
func (p *Post) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// IsShortVideo 表示该平台以播放量而非曝光量作为互动率分母。
func IsShortVideo(platform string) bool {
	return platform == PlatformTikTok
}
