package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPerDevicePath 设备文件命名：{hostname}_{IP 点转下划线}.txt
func TestPerDevicePath(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewOutputSink(dir, false)
	require.NoError(t, err)
	defer sink.Close()

	path := sink.PerDevicePath("R1", "10.0.0.1")
	assert.Equal(t, filepath.Join(dir, "R1_10_0_0_1.txt"), path)
}

// TestWritePerDeviceOverwrite 同名文件后写者胜
func TestWritePerDeviceOverwrite(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewOutputSink(dir, false)
	require.NoError(t, err)
	defer sink.Close()

	_, err = sink.WritePerDevice("R1", "10.0.0.1", "first")
	require.NoError(t, err)
	path, err := sink.WritePerDevice("R1", "10.0.0.1", "second")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

// TestWriteCombinedTruncatesOldRun 重复运行时合并文件从零开始
func TestWriteCombinedTruncatesOldRun(t *testing.T) {
	dir := t.TempDir()

	sink, err := NewOutputSink(dir, true)
	require.NoError(t, err)
	require.NoError(t, sink.WriteCombined("old content\n"))
	require.NoError(t, sink.Close())

	sink, err = NewOutputSink(dir, true)
	require.NoError(t, err)
	require.NoError(t, sink.WriteCombined("new content\n"))
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(filepath.Join(dir, CombinedFileName))
	require.NoError(t, err)
	assert.Equal(t, "new content\n", string(data))
}

// TestWriteCombinedDisabled 未启用合并模式时写入应报错
func TestWriteCombinedDisabled(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewOutputSink(dir, false)
	require.NoError(t, err)
	defer sink.Close()

	assert.Error(t, sink.WriteCombined("fragment"))
	assert.NoFileExists(t, filepath.Join(dir, CombinedFileName))
}

// TestWriteFailureArtifacts 失败清单按完成顺序逐行写出
func TestWriteFailureArtifacts(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewOutputSink(dir, false)
	require.NoError(t, err)
	defer sink.Close()

	errs := []string{"10.0.0.2: timeout", "10.0.0.5: auth failed"}
	failed := []string{"10.0.0.2", "10.0.0.5"}
	require.NoError(t, sink.WriteFailureArtifacts(errs, failed))

	data, err := os.ReadFile(filepath.Join(dir, ErrorLogFileName))
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2: timeout\n10.0.0.5: auth failed\n", string(data))

	data, err = os.ReadFile(filepath.Join(dir, FailedIPsFileName))
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2\n10.0.0.5\n", string(data))
}

// TestWriteFailureArtifactsEmpty 无失败时不生成清单文件
func TestWriteFailureArtifactsEmpty(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewOutputSink(dir, false)
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.WriteFailureArtifacts(nil, nil))
	assert.NoFileExists(t, filepath.Join(dir, ErrorLogFileName))
	assert.NoFileExists(t, filepath.Join(dir, FailedIPsFileName))
}

// TestEnsureDirNested 多级目录幂等创建
func TestEnsureDirNested(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "c")
	require.NoError(t, EnsureDir(dir))
	require.NoError(t, EnsureDir(dir))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
