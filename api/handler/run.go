package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/showclipro/showclipro/internal/database"
	"github.com/showclipro/showclipro/internal/model"
	"github.com/showclipro/showclipro/internal/service"
	"github.com/showclipro/showclipro/pkg/logger"
	sshx "github.com/showclipro/showclipro/pkg/ssh"
)

// ErrorResponse 错误响应
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BatchRunRequest 批量执行请求体。凭据只在本次请求内使用，不落库、不写日志。
type BatchRunRequest struct {
	Targets        []string `json:"targets" binding:"required"`
	Commands       []string `json:"commands" binding:"required"`
	Username       string   `json:"username" binding:"required"`
	Password       string   `json:"password" binding:"required"`
	EnablePassword string   `json:"enable_password"`
	Combine        bool     `json:"combine"`
	OutputSubdir   string   `json:"output_subdir"`
	MaxWorkers     int      `json:"max_workers"`
}

// RunHandler 批量执行处理器
type RunHandler struct {
	runner *service.RunnerService
}

// NewRunHandler 创建批量执行处理器
func NewRunHandler(runner *service.RunnerService) *RunHandler {
	return &RunHandler{runner: runner}
}

// BatchRun 执行批量采集
// @Summary 对一批设备并发执行命令序列
// @Tags run
// @Accept json
// @Produce json
// @Param request body BatchRunRequest true "批量执行请求"
// @Success 200 {object} service.RunSummary "执行汇总"
// @Failure 400 {object} ErrorResponse "请求参数错误"
// @Failure 500 {object} ErrorResponse "服务器内部错误"
// @Router /api/v1/run/batch [post]
func (h *RunHandler) BatchRun(c *gin.Context) {
	var request BatchRunRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		logger.Error("Invalid request parameters", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_PARAMS",
			Message: "invalid request parameters: " + err.Error(),
		})
		return
	}

	if err := validateBatchRunRequest(&request); err != nil {
		logger.Error("Request validation failed", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_FAILED",
			Message: err.Error(),
		})
		return
	}

	req := &service.RunRequest{
		Targets:  request.Targets,
		Commands: request.Commands,
		Credentials: sshx.Credentials{
			Username:       request.Username,
			Password:       request.Password,
			EnablePassword: request.EnablePassword,
		},
		Combine:      request.Combine,
		OutputSubdir: request.OutputSubdir,
		MaxWorkers:   request.MaxWorkers,
		Source:       model.RunSourceAPI,
	}

	summary, err := h.runner.Execute(c.Request.Context(), req)
	if err != nil {
		logger.Error("Batch run failed before dispatch", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "EXECUTION_FAILED",
			Message: "batch run failed: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, summary)
}

// validateBatchRunRequest 派发前的参数校验
func validateBatchRunRequest(request *BatchRunRequest) error {
	if len(request.Targets) == 0 {
		return fmt.Errorf("targets cannot be empty")
	}
	for _, target := range request.Targets {
		if strings.TrimSpace(target) == "" {
			return fmt.Errorf("targets contains an empty entry")
		}
	}
	if len(request.Commands) == 0 {
		return fmt.Errorf("commands cannot be empty")
	}
	for _, cmd := range request.Commands {
		if strings.TrimSpace(cmd) == "" {
			return fmt.Errorf("commands contains an empty entry")
		}
	}
	if request.MaxWorkers < 0 {
		return fmt.Errorf("max_workers cannot be negative")
	}
	if strings.Contains(request.OutputSubdir, "..") {
		return fmt.Errorf("output_subdir cannot contain path traversal")
	}
	return nil
}

// Health 健康检查
// @Summary 服务健康状态
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{} "健康状态"
// @Router /api/v1/health [get]
func (h *RunHandler) Health(c *gin.Context) {
	status := gin.H{
		"status":  "healthy",
		"service": "show-cli-pro",
	}
	if database.GetDB() != nil {
		if err := database.Health(); err != nil {
			status["status"] = "degraded"
			status["database"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		status["database"] = "ok"
	}
	c.JSON(http.StatusOK, status)
}
