package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadDefaults 无配置文件时使用内置默认值
func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Runner.MaxWorkers)
	assert.Equal(t, "./outputs", cfg.Runner.OutputDir)
	assert.Equal(t, 300*time.Second, cfg.Runner.CommandTimeout)
	assert.Equal(t, 22, cfg.SSH.Port)
	assert.Equal(t, 15*time.Second, cfg.SSH.ConnectTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.False(t, cfg.Database.SQLite.Enabled)
}

// TestLoadExplicitFile 显式指定的配置文件缺失时报错
func TestLoadExplicitFileMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

// TestLoadFromFile 配置文件覆盖默认值
func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
runner:
  max_workers: 10
  output_dir: "/var/run/showcli"
  command_timeout: 120s
ssh:
  port: 2222
cli:
  user: "netops"
  combine: true
storage:
  backend: "minio"
  minio:
    host: "minio.local"
    port: 9000
    bucket: "artifacts"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Runner.MaxWorkers)
	assert.Equal(t, "/var/run/showcli", cfg.Runner.OutputDir)
	assert.Equal(t, 120*time.Second, cfg.Runner.CommandTimeout)
	assert.Equal(t, 2222, cfg.SSH.Port)
	assert.Equal(t, "netops", cfg.CLI.User)
	assert.True(t, cfg.CLI.Combine)
	assert.Equal(t, "minio", cfg.Storage.Backend)
	assert.Equal(t, "minio.local", cfg.Storage.Minio.Host)
}

// TestValidate 非法配置在派发前被拒绝
func TestValidate(t *testing.T) {
	cfg := &Config{
		Runner:  RunnerConfig{MaxWorkers: 5, OutputDir: "./outputs"},
		Storage: StorageConfig{Backend: "local"},
	}
	assert.NoError(t, cfg.Validate())

	bad := *cfg
	bad.Runner.MaxWorkers = 0
	assert.Error(t, bad.Validate(), "workers 必须为正数")

	bad = *cfg
	bad.Runner.MaxWorkers = -3
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Runner.OutputDir = "  "
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Storage.Backend = "s3"
	assert.Error(t, bad.Validate())
}

// TestLoadInvalidWorkers 配置文件里的非法 workers 直接拒绝
func TestLoadInvalidWorkers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("runner:\n  max_workers: 0\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_workers")
}
