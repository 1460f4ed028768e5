package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ExperimentPending   = "pending"
	ExperimentRunning   = "running"
	ExperimentCompleted = "completed"
	ExperimentCancelled = "cancelled"
)

// Experiment 描述一次 A/B 内容实验。
type Experiment struct {
	ID                 string  `gorm:"primaryKey;size:36"`
	WorkspaceID        string  `gorm:"size:36;index;not null"`
	Name               string  `gorm:"size:200;not null"`
	Type               string  `gorm:"size:64"`
	Status             string  `gorm:"size:16;default:pending"`
	WinnerVariantLabel *string `gorm:"size:8"`
	WinnerReason       *string `gorm:"type:text"`
	Summary            *string `gorm:"type:text"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// BeforeCreate 在未指定主键时生成 UUID。
func (e *Experiment) BeforeCreate(*gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
