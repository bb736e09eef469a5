package models

import (
	"time"

	"gorm.io/datatypes"
)

type AdminLog struct {
	ID         string            `gorm:"column:id;primary_key;type:uuid" json:"id"`
	AdminID    string            `gorm:"column:admin_id;type:varchar(64);not null;index" json:"admin_id"`
	Action     string            `gorm:"column:action;type:varchar(64);not null;index" json:"action"`
	TargetType string            `gorm:"column:target_type;type:varchar(64)" json:"target_type"`
	TargetID   string            `gorm:"column:target_id;type:varchar(64)" json:"target_id"`
	Details    datatypes.JSONMap `gorm:"column:details;type:jsonb" json:"details"`
	TraceID    string            `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	CreatedAt  time.Time         `json:"created_at"`
}

func (AdminLog) TableName() string { return "admin_logs" }
