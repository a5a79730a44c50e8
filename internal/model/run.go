package model

import (
	"time"
)

// Run 一次批量执行记录
type Run struct {
	ID                string    `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Source            string    `json:"source" gorm:"type:varchar(16);not null;default:'cli'"`
	OutputDir         string    `json:"output_dir" gorm:"type:varchar(256)"`
	Combine           bool      `json:"combine" gorm:"not null;default:false"`
	MaxWorkers        int       `json:"max_workers" gorm:"not null;default:5"`
	Commands          string    `json:"commands" gorm:"type:text;not null"`
	TotalTargets      int       `json:"total_targets" gorm:"not null"`
	DroppedDuplicates int       `json:"dropped_duplicates" gorm:"not null;default:0"`
	Succeeded         int       `json:"succeeded" gorm:"not null"`
	Failed            int       `json:"failed" gorm:"not null"`
	Status            string    `json:"status" gorm:"type:varchar(16);not null;default:'pending'"`
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
	Duration          int64     `json:"duration"` // 执行时长，毫秒
	CreatedAt         time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt         time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 表名
func (Run) TableName() string {
	return "runs"
}

// Run 状态枚举
const (
	RunStatusSuccess = "success"
	RunStatusPartial = "partial"
	RunStatusFailed  = "failed"
)

// Run 来源枚举
const (
	RunSourceCLI = "cli"
	RunSourceAPI = "api"
)

// RunDevice 单台设备的执行结果
type RunDevice struct {
	ID             uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	RunID          string    `json:"run_id" gorm:"type:varchar(64);not null;index"`
	Target         string    `json:"target" gorm:"type:varchar(64);not null"`
	Hostname       string    `json:"hostname" gorm:"type:varchar(128)"`
	Succeeded      bool      `json:"succeeded" gorm:"not null"`
	ErrorMsg       string    `json:"error_msg" gorm:"type:text"`
	OutputBytes    int       `json:"output_bytes" gorm:"not null;default:0"`
	OutputPath     string    `json:"output_path" gorm:"type:varchar(256)"`
	CompletedOrder int       `json:"completed_order" gorm:"not null"` // 完成顺序，从 1 开始
	Duration       int64     `json:"duration"`                        // 执行时长，毫秒
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 表名
func (RunDevice) TableName() string {
	return "run_devices"
}
