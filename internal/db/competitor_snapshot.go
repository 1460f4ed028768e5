package db

import "time"

// CompetitorSnapshot 记录竞品账号的公开指标，仅在平台抓取成功时写入。
type CompetitorSnapshot struct {
	ID                uint   `gorm:"primaryKey"`
	WorkspaceID       string `gorm:"size:36;index"`
	Platform          string `gorm:"size:32"`
	Handle            string `gorm:"size:120"`
	CapturedAt        time.Time
	Followers         int64
	AvgEngagementRate float64
	CreatedAt         time.Time
}

// TableName 指定自定义表名。
func (CompetitorSnapshot) TableName() string {
	return "competitor_snapshots"
}
