package service

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/showclipro/showclipro/internal/database"
	"github.com/showclipro/showclipro/internal/model"
)

// HistoryStore 运行历史持久化
type HistoryStore struct{}

// NewHistoryStore 创建历史存储；要求数据库已初始化
func NewHistoryStore() (*HistoryStore, error) {
	if database.GetDB() == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	return &HistoryStore{}, nil
}

// Record 将一次运行的汇总与逐台设备结果写入数据库。
// 命令列表只记录命令本身，凭据不落库。
func (h *HistoryStore) Record(req *RunRequest, summary *RunSummary) error {
	run := &model.Run{
		ID:                summary.RunID,
		Source:            normalizeSource(req.Source),
		OutputDir:         summary.OutputDir,
		Combine:           summary.Combine,
		MaxWorkers:        req.MaxWorkers,
		Commands:          strings.Join(req.Commands, "\n"),
		TotalTargets:      summary.Total,
		DroppedDuplicates: summary.DroppedDuplicates,
		Succeeded:         summary.Succeeded,
		Failed:            summary.Failed,
		Status:            summary.Status(),
		StartTime:         summary.StartTime,
		EndTime:           summary.EndTime,
		Duration:          summary.EndTime.Sub(summary.StartTime).Milliseconds(),
	}

	devices := make([]model.RunDevice, 0, len(summary.Outcomes))
	for _, outcome := range summary.Outcomes {
		devices = append(devices, model.RunDevice{
			RunID:          summary.RunID,
			Target:         outcome.Target,
			Hostname:       outcome.Hostname,
			Succeeded:      outcome.Succeeded,
			ErrorMsg:       outcome.Error,
			OutputBytes:    outcome.OutputBytes,
			OutputPath:     outcome.OutputPath,
			CompletedOrder: outcome.CompletedOrder,
			Duration:       outcome.Duration.Milliseconds(),
		})
	}

	return database.WithRetry(func(db *gorm.DB) error {
		if err := db.Create(run).Error; err != nil {
			return fmt.Errorf("failed to create run record: %w", err)
		}
		if len(devices) > 0 {
			if err := db.Create(&devices).Error; err != nil {
				return fmt.Errorf("failed to create run device records: %w", err)
			}
		}
		return nil
	}, 5, 100*time.Millisecond)
}

// ListRuns 按开始时间倒序分页列出运行记录
func (h *HistoryStore) ListRuns(page, pageSize int) ([]model.Run, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 20
	}

	var runs []model.Run
	var total int64
	db := database.GetDB()
	if err := db.Model(&model.Run{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count runs: %w", err)
	}
	err := db.Order("start_time DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&runs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, total, nil
}

// GetRun 取单次运行记录及其逐台设备结果，按完成顺序返回
func (h *HistoryStore) GetRun(runID string) (*model.Run, []model.RunDevice, error) {
	db := database.GetDB()

	var run model.Run
	if err := db.First(&run, "id = ?", runID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, fmt.Errorf("run not found: %s", runID)
		}
		return nil, nil, fmt.Errorf("failed to query run: %w", err)
	}

	var devices []model.RunDevice
	if err := db.Where("run_id = ?", runID).
		Order("completed_order ASC").
		Find(&devices).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to query run devices: %w", err)
	}
	return &run, devices, nil
}

// normalizeSource 校正来源取值
func normalizeSource(source string) string {
	switch source {
	case model.RunSourceAPI:
		return model.RunSourceAPI
	default:
		return model.RunSourceCLI
	}
}
