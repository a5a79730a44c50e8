package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/showclipro/showclipro/internal/service"
	"github.com/showclipro/showclipro/pkg/logger"
)

// HistoryHandler 运行历史处理器
type HistoryHandler struct {
	history *service.HistoryStore
}

// NewHistoryHandler 创建运行历史处理器
func NewHistoryHandler(history *service.HistoryStore) *HistoryHandler {
	return &HistoryHandler{history: history}
}

// ListRuns 分页列出运行记录
// @Summary 按开始时间倒序列出运行记录
// @Tags runs
// @Produce json
// @Param page query int false "页码，从 1 开始"
// @Param page_size query int false "每页条数，默认 20"
// @Success 200 {object} map[string]interface{} "运行记录列表"
// @Failure 500 {object} ErrorResponse "服务器内部错误"
// @Router /api/v1/runs [get]
func (h *HistoryHandler) ListRuns(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Code:    "HISTORY_DISABLED",
			Message: "run history is not enabled",
		})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	runs, total, err := h.history.ListRuns(page, pageSize)
	if err != nil {
		logger.Error("Failed to list runs", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "QUERY_FAILED",
			Message: "failed to list runs: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":     total,
		"page":      page,
		"page_size": pageSize,
		"runs":      runs,
	})
}

// GetRun 取单次运行详情
// @Summary 取单次运行记录及其逐台设备结果
// @Tags runs
// @Produce json
// @Param id path string true "运行ID"
// @Success 200 {object} map[string]interface{} "运行详情"
// @Failure 404 {object} ErrorResponse "运行不存在"
// @Router /api/v1/runs/{id} [get]
func (h *HistoryHandler) GetRun(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Code:    "HISTORY_DISABLED",
			Message: "run history is not enabled",
		})
		return
	}

	runID := c.Param("id")
	if runID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "MISSING_RUN_ID",
			Message: "run id cannot be empty",
		})
		return
	}

	run, devices, err := h.history.GetRun(runID)
	if err != nil {
		logger.Error("Failed to get run", "run_id", runID, "error", err)
		c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    "RUN_NOT_FOUND",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run":     run,
		"devices": devices,
	})
}
