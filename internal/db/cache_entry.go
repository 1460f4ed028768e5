package db

import "time"

// CacheEntry 缓存外部生成的解释文本，按内容哈希寻址。
type CacheEntry struct {
	CacheKey     string    `gorm:"primaryKey;size:64"`
	WorkspaceID  *string   `gorm:"size:36;index"`
	CacheType    string    `gorm:"size:32;index"`
	ResponseText string    `gorm:"type:text"`
	ExpiresAt    time.Time `gorm:"index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName 指定自定义表名。
func (CacheEntry) TableName() string {
	return "response_cache"
}
