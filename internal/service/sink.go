package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// 固定产物文件名
const (
	CombinedFileName  = "combined_output.txt"
	ErrorLogFileName  = "connection_errors.txt"
	FailedIPsFileName = "failed_ips.txt"
)

// OutputSink 输出产物管理器。仅收集协程（单消费者）访问，无需加锁。
type OutputSink struct {
	dir      string
	combined *os.File
}

// NewOutputSink 创建输出目录；combine 为真时同时创建合并输出文件（截断旧内容）
func NewOutputSink(dir string, combine bool) (*OutputSink, error) {
	if err := EnsureDir(dir); err != nil {
		return nil, err
	}
	sink := &OutputSink{dir: dir}
	if combine {
		f, err := os.Create(filepath.Join(dir, CombinedFileName))
		if err != nil {
			return nil, fmt.Errorf("failed to create combined output: %w", err)
		}
		sink.combined = f
	}
	return sink, nil
}

// EnsureDir 幂等创建目录
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create output dir %s: %w", path, err)
	}
	return nil
}

// Dir 输出目录
func (s *OutputSink) Dir() string {
	return s.dir
}

// WriteCombined 将一台设备的完整输出作为整体片段追加到合并文件。
// 单次 Write 调用保证片段不被其他设备的片段穿插。
func (s *OutputSink) WriteCombined(fragment string) error {
	if s.combined == nil {
		return fmt.Errorf("combined output not enabled")
	}
	if _, err := s.combined.WriteString(fragment); err != nil {
		return fmt.Errorf("failed to append combined output: %w", err)
	}
	return nil
}

// PerDevicePath 按 {hostname}_{ip 点转下划线}.txt 规则生成设备文件路径
func (s *OutputSink) PerDevicePath(hostname, target string) string {
	name := fmt.Sprintf("%s_%s.txt", hostname, strings.ReplaceAll(target, ".", "_"))
	return filepath.Join(s.dir, name)
}

// WritePerDevice 写单台设备的输出文件；同名文件直接覆盖（后写者胜）
func (s *OutputSink) WritePerDevice(hostname, target, content string) (string, error) {
	path := s.PerDevicePath(hostname, target)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// WriteFailureArtifacts 所有任务完成后一次性写失败清单；两个清单均按完成顺序，
// 为空时不生成对应文件
func (s *OutputSink) WriteFailureArtifacts(errorLog, failedTargets []string) error {
	if len(errorLog) > 0 {
		path := filepath.Join(s.dir, ErrorLogFileName)
		if err := writeLines(path, errorLog); err != nil {
			return err
		}
	}
	if len(failedTargets) > 0 {
		path := filepath.Join(s.dir, FailedIPsFileName)
		if err := writeLines(path, failedTargets); err != nil {
			return err
		}
	}
	return nil
}

func writeLines(path string, lines []string) error {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteString("\n")
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Close 关闭合并文件句柄
func (s *OutputSink) Close() error {
	if s.combined != nil {
		err := s.combined.Close()
		s.combined = nil
		return err
	}
	return nil
}
