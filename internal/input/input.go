package input

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	// LabelTargets IP 清单文件的人类可读标签
	LabelTargets = "IP list"
	// LabelCommands 命令清单文件的人类可读标签
	LabelCommands = "Command"

	// manualSentinel 交互式录入的结束标记（大小写不敏感）
	manualSentinel = "DONE"
)

// NotFoundError 输入文件缺失或不可用
type NotFoundError struct {
	Label string
	Path  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s file not found: %s", e.Label, e.Path)
}

// ResolveDataFile 解析输入文件路径：相对路径基于 dataDir，必须指向常规文件
func ResolveDataFile(dataDir, pathValue, label string) (string, error) {
	candidate := pathValue
	if !filepath.IsAbs(candidate) && strings.TrimSpace(dataDir) != "" {
		candidate = filepath.Join(dataDir, candidate)
	}
	info, err := os.Stat(candidate)
	if err != nil || info.IsDir() {
		return "", &NotFoundError{Label: label, Path: candidate}
	}
	return candidate, nil
}

// readLines 按行读取，去除首尾空白并丢弃空行，保持顺序
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return lines, nil
}

// LoadTargets 从文件加载设备地址清单（一行一个，跳过空行，保持顺序）
func LoadTargets(dataDir, pathValue string) ([]string, error) {
	path, err := ResolveDataFile(dataDir, pathValue, LabelTargets)
	if err != nil {
		return nil, err
	}
	return readLines(path)
}

// LoadCommands 从文件加载命令清单（一行一条，跳过空行，保持顺序）
func LoadCommands(dataDir, pathValue string) ([]string, error) {
	path, err := ResolveDataFile(dataDir, pathValue, LabelCommands)
	if err != nil {
		return nil, err
	}
	return readLines(path)
}

// ParseCommandList 解析逗号分隔的命令串，逐项去空白并丢弃空项
func ParseCommandList(literal string) []string {
	parts := strings.Split(literal, ",")
	commands := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			commands = append(commands, p)
		}
	}
	return commands
}

// ReadManualTargets 交互式逐行录入地址，输入 DONE（不区分大小写）或 EOF 结束
func ReadManualTargets(r io.Reader) ([]string, error) {
	var targets []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.EqualFold(line, manualSentinel) {
			break
		}
		if line != "" {
			targets = append(targets, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read manual targets: %w", err)
	}
	return targets, nil
}

// Dedupe 按字符串精确匹配去重，保留首次出现顺序，返回被丢弃的重复数量。
// 不做 IP 文本形态归一化（如前导零、IPv6 压缩形式），保持精确匹配语义。
func Dedupe(targets []string) ([]string, int) {
	seen := make(map[string]struct{}, len(targets))
	deduped := make([]string, 0, len(targets))
	for _, t := range targets {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		deduped = append(deduped, t)
	}
	return deduped, len(targets) - len(deduped)
}
