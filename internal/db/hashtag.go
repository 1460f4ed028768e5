package db

import "time"

// Hashtag 定义了工作区内的话题标签，名称统一小写。
type Hashtag struct {
	ID          uint   `gorm:"primaryKey"`
	WorkspaceID string `gorm:"size:36;not null;uniqueIndex:idx_hashtag_workspace_name"`
	Name        string `gorm:"size:140;not null;uniqueIndex:idx_hashtag_workspace_name"`
	FirstUsedAt time.Time
	LastUsedAt  time.Time
	Posts       []Post `gorm:"many2many:post_hashtags;"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PostHashtag 为文章与标签的关联表，重新解析文案时整体替换。
type PostHashtag struct {
	PostID    string `gorm:"primaryKey;size:36"`
	HashtagID uint   `gorm:"primaryKey"`
}

// TableName 与 many2many 关联保持一致。
func (PostHashtag) TableName() string {
	return "post_hashtags"
}
