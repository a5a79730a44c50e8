package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/showclipro/showclipro/internal/config"
	"github.com/showclipro/showclipro/internal/input"
	"github.com/showclipro/showclipro/pkg/logger"
	sshx "github.com/showclipro/showclipro/pkg/ssh"
)

// RunRequest 一次批量执行请求
type RunRequest struct {
	RunID        string
	Targets      []string
	Commands     []string
	Credentials  sshx.Credentials
	Combine      bool
	OutputSubdir string
	MaxWorkers   int
	Source       string // cli | api
}

// DeviceOutcome 汇总中的单台设备结果（不携带完整输出）
type DeviceOutcome struct {
	Target         string        `json:"target"`
	Hostname       string        `json:"hostname,omitempty"`
	Succeeded      bool          `json:"succeeded"`
	Error          string        `json:"error,omitempty"`
	OutputBytes    int           `json:"output_bytes"`
	OutputPath     string        `json:"output_path,omitempty"`
	CompletedOrder int           `json:"completed_order"`
	Duration       time.Duration `json:"duration"`
}

// RunSummary 一次批量执行的汇总
type RunSummary struct {
	RunID             string          `json:"run_id"`
	OutputDir         string          `json:"output_dir"`
	Combine           bool            `json:"combine"`
	Total             int             `json:"total"`
	Succeeded         int             `json:"succeeded"`
	Failed            int             `json:"failed"`
	DroppedDuplicates int             `json:"dropped_duplicates"`
	WriteErrors       int             `json:"write_errors"`
	Errors            []string        `json:"errors,omitempty"`         // 完成顺序
	FailedTargets     []string        `json:"failed_targets,omitempty"` // 完成顺序
	Outcomes          []DeviceOutcome `json:"outcomes"`                 // 完成顺序
	StartTime         time.Time       `json:"start_time"`
	EndTime           time.Time       `json:"end_time"`
}

// RunnerService 批量执行服务：有界并发派发 + 单收集协程聚合
type RunnerService struct {
	cfg       *config.Config
	transport sshx.Transport
	history   *HistoryStore
	mirror    StorageWriter
}

// NewRunnerService 创建批量执行服务
func NewRunnerService(cfg *config.Config) *RunnerService {
	transport := sshx.NewClient(&sshx.Config{
		Port:           cfg.SSH.Port,
		ConnectTimeout: cfg.SSH.ConnectTimeout,
		KeepAlive:      cfg.SSH.KeepAlive,
	})
	return NewRunnerServiceWithTransport(cfg, transport)
}

// NewRunnerServiceWithTransport 指定传输实现（测试用桩即由此注入）
func NewRunnerServiceWithTransport(cfg *config.Config, transport sshx.Transport) *RunnerService {
	return &RunnerService{
		cfg:       cfg,
		transport: transport,
		mirror:    NewStorageWriter(cfg),
	}
}

// SetHistory 启用运行历史持久化
func (s *RunnerService) SetHistory(h *HistoryStore) {
	s.history = h
}

// Execute 对去重后的每个目标派发一个任务，最多 MaxWorkers 个并发在途。
// 单个任务失败绝不中断同批任务；只有派发前的准备失败才会让整次运行失败。
func (s *RunnerService) Execute(ctx context.Context, req *RunRequest) (*RunSummary, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if len(req.Targets) == 0 {
		return nil, fmt.Errorf("targets is empty")
	}
	if len(req.Commands) == 0 {
		return nil, fmt.Errorf("commands is empty")
	}

	maxWorkers := req.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = s.cfg.Runner.MaxWorkers
	}
	if req.RunID == "" {
		req.RunID = fmt.Sprintf("run_%d", time.Now().UnixNano())
	}

	// 精确字符串匹配去重，保留首次出现顺序
	targets, dropped := input.Dedupe(req.Targets)
	if dropped > 0 {
		logger.Info("Duplicate targets skipped", "dropped", dropped)
	}

	outputDir := s.cfg.Runner.OutputDir
	if sub := strings.TrimSpace(req.OutputSubdir); sub != "" {
		outputDir = filepath.Join(outputDir, sub)
	}

	// 准备失败属于致命错误，在任何设备被联系之前终止
	sink, err := NewOutputSink(outputDir, req.Combine)
	if err != nil {
		return nil, err
	}
	defer sink.Close()

	summary := &RunSummary{
		RunID:             req.RunID,
		OutputDir:         outputDir,
		Combine:           req.Combine,
		Total:             len(targets),
		DroppedDuplicates: dropped,
		StartTime:         time.Now(),
		Outcomes:          make([]DeviceOutcome, 0, len(targets)),
	}

	logger.Info("Dispatching batch run",
		"run_id", req.RunID,
		"targets", len(targets),
		"commands", len(req.Commands),
		"workers", maxWorkers,
		"combine", req.Combine,
	)

	// 生产侧：errgroup 限制在途任务数；无缓冲通道保证收集顺序即完成顺序
	results := make(chan TaskResult)
	go func() {
		g := &errgroup.Group{}
		g.SetLimit(maxWorkers)
		for _, target := range targets {
			task := &deviceTask{
				target:     target,
				commands:   req.Commands,
				creds:      req.Credentials,
				transport:  s.transport,
				cmdTimeout: s.cfg.Runner.CommandTimeout,
			}
			g.Go(func() error {
				results <- task.Run(ctx)
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	// 收集侧：唯一消费者，独占全部输出汇聚点，无需加锁
	completed := 0
	for result := range results {
		completed++
		outcome := DeviceOutcome{
			Target:         result.Target,
			Hostname:       result.Hostname,
			Succeeded:      result.Succeeded,
			Error:          result.Err,
			OutputBytes:    len(result.Output),
			CompletedOrder: completed,
			Duration:       result.Duration,
		}

		if result.Succeeded {
			summary.Succeeded++
			if req.Combine {
				if err := sink.WriteCombined(result.Output); err != nil {
					// 产物写失败只影响该产物，不终止同批任务
					summary.WriteErrors++
					logger.Error("Combined write failed", "target", result.Target, "error", err)
				}
			} else {
				path, err := sink.WritePerDevice(result.Hostname, result.Target, result.Output)
				if err != nil {
					summary.WriteErrors++
					logger.Error("Per-device write failed", "target", result.Target, "error", err)
				} else {
					outcome.OutputPath = path
					logger.Info("Output saved", "path", path)
				}
			}
		} else {
			summary.Failed++
			summary.Errors = append(summary.Errors, result.Err)
			summary.FailedTargets = append(summary.FailedTargets, result.Target)
			logger.Error("Device failed", "target", result.Target, "error", result.Err)
		}
		summary.Outcomes = append(summary.Outcomes, outcome)
	}
	summary.EndTime = time.Now()

	// 失败清单在全部任务结束后一次性写出，按完成顺序
	if err := sink.WriteFailureArtifacts(summary.Errors, summary.FailedTargets); err != nil {
		summary.WriteErrors++
		logger.Error("Failure artifacts write failed", "error", err)
	}
	if len(summary.Errors) > 0 {
		logger.Info("Errors logged", "path", filepath.Join(outputDir, ErrorLogFileName))
		logger.Info("Failed IPs saved", "path", filepath.Join(outputDir, FailedIPsFileName))
	}

	// 合并文件落盘后再做镜像上传
	_ = sink.Close()
	if s.mirror != nil {
		if err := s.mirror.MirrorArtifacts(ctx, req.RunID, outputDir); err != nil {
			logger.Warn("Artifact mirroring failed", "run_id", req.RunID, "error", err)
		}
	}

	if s.history != nil {
		if err := s.history.Record(req, summary); err != nil {
			logger.Warn("Run history persist failed", "run_id", req.RunID, "error", err)
		}
	}

	logger.Info("Batch run finished",
		"run_id", req.RunID,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"duration", summary.EndTime.Sub(summary.StartTime),
	)
	return summary, nil
}

// Status 依据成功/失败计数得到运行状态
func (s *RunSummary) Status() string {
	switch {
	case s.Failed == 0:
		return "success"
	case s.Succeeded == 0:
		return "failed"
	default:
		return "partial"
	}
}
