package db

import "time"

// MetricSnapshot 记录某一时刻文章的互动计数，只追加不修改。
// 文章删除后快照保留用于审计，因此不设置外键级联。
type MetricSnapshot struct {
	ID          uint      `gorm:"primaryKey"`
	PostID      string    `gorm:"size:36;index:idx_snapshot_post_time"`
	CapturedAt  time.Time `gorm:"index:idx_snapshot_post_time"`
	Impressions int64
	Views       int64
	Likes       int64
	Comments    int64
	Shares      int64
	Saves       int64
	CreatedAt   time.Time
}

// TableName 指定自定义表名。
func (MetricSnapshot) TableName() string {
	return "metric_snapshots"
}

// Engagement 返回点赞、评论、分享与收藏的总和。
func (m MetricSnapshot) Engagement() int64 {
	return m.Likes + m.Comments + m.Shares + m.Saves
}

// EngagementRate 按平台选择分母计算互动率（百分比），分母为 0 时返回 0。
func (m MetricSnapshot) EngagementRate(platform string) float64 {
	denominator := m.Impressions
	if IsShortVideo(platform) {
		denominator = m.Views
	}
	if denominator <= 0 {
		return 0
	}
	return float64(m.Engagement()) / float64(denominator) * 100
}
