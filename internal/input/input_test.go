package input

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDedupe 精确字符串去重，保留首次出现顺序
func TestDedupe(t *testing.T) {
	targets := []string{"10.0.0.1", "10.0.0.2", "10.0.0.1", "10.0.0.3", "10.0.0.2"}
	deduped, dropped := Dedupe(targets)

	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}, deduped)
	assert.Equal(t, 2, dropped, "应该丢弃2个重复项")

	// 文本形态不同的同一地址不做归一化
	deduped, dropped = Dedupe([]string{"10.0.0.1", "010.0.0.1"})
	assert.Len(t, deduped, 2, "前导零形态视为不同目标")
	assert.Equal(t, 0, dropped)
}

// TestDedupeEmpty 空清单去重
func TestDedupeEmpty(t *testing.T) {
	deduped, dropped := Dedupe(nil)
	assert.Empty(t, deduped)
	assert.Equal(t, 0, dropped)
}

// TestLoadTargets 按行加载目标清单，跳过空行
func TestLoadTargets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ips.txt")
	content := "10.0.0.1\n\n  10.0.0.2  \n10.0.0.3\n\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	targets, err := LoadTargets(dir, "ips.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}, targets)
}

// TestLoadTargetsNotFound 清单文件缺失时返回可识别的错误
func TestLoadTargetsNotFound(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadTargets(dir, "missing.txt")
	require.Error(t, err)

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, LabelTargets, notFound.Label)
	assert.Contains(t, err.Error(), "IP list file not found")
}

// TestLoadCommandsNotFound 命令文件缺失时错误标签为 Command
func TestLoadCommandsNotFound(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadCommands(dir, "missing_cmds.txt")
	require.Error(t, err)

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, LabelCommands, notFound.Label)
	assert.Contains(t, err.Error(), "Command file not found")
}

// TestResolveDataFileAbsolutePath 绝对路径不做 dataDir 拼接
func TestResolveDataFileAbsolutePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cmds.txt")
	require.NoError(t, os.WriteFile(path, []byte("show version\n"), 0644))

	resolved, err := ResolveDataFile("/nonexistent/data", path, LabelCommands)
	require.NoError(t, err)
	assert.Equal(t, path, resolved)
}

// TestResolveDataFileRejectsDir 指向目录视为不可用
func TestResolveDataFileRejectsDir(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0755))

	_, err := ResolveDataFile(dir, "sub", LabelTargets)
	require.Error(t, err)
}

// TestParseCommandList 逗号分隔命令解析
func TestParseCommandList(t *testing.T) {
	commands := ParseCommandList("show version, show ip int brief ,,show run")
	assert.Equal(t, []string{"show version", "show ip int brief", "show run"}, commands)

	assert.Empty(t, ParseCommandList(""))
	assert.Empty(t, ParseCommandList(" , , "))
}

// TestReadManualTargets DONE 结束录入，大小写不敏感
func TestReadManualTargets(t *testing.T) {
	r := strings.NewReader("10.0.0.1\n\n10.0.0.2\ndone\n10.0.0.3\n")
	targets, err := ReadManualTargets(r)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, targets, "done 之后的输入应被忽略")
}

// TestReadManualTargetsEOF 无结束标记时 EOF 同样结束录入
func TestReadManualTargetsEOF(t *testing.T) {
	r := strings.NewReader("10.0.0.1\n10.0.0.2")
	targets, err := ReadManualTargets(r)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, targets)
}
