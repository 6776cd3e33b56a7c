package models

import "time"

// SyncLog is an audit record of one sync run or scheduler decision.
type SyncLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Level      string    `gorm:"size:20;index" json:"level"`       // info, warning, error
	Module     string    `gorm:"size:100;index" json:"module"`     // project_sync, member_sync, scheduler
	Action     string    `gorm:"size:200;index" json:"action"`     // sync, skip, wallet_lookup ...
	EntityType string    `gorm:"size:50;index" json:"entity_type"` // project, member
	EntityID   uint      `gorm:"index" json:"entity_id"`
	Status     int       `json:"status"`
	Message    string    `gorm:"type:text" json:"message"`
	Extra      string    `gorm:"type:text" json:"extra"` // JSON extra data
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

func (SyncLog) TableName() string { return "sync_logs" }
