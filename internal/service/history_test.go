package service

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/showclipro/showclipro/internal/config"
	"github.com/showclipro/showclipro/internal/database"
	"github.com/showclipro/showclipro/internal/model"
)

func setupHistory(t *testing.T) *HistoryStore {
	t.Helper()
	cfg := config.SQLiteConfig{
		Path:            filepath.Join(t.TempDir(), "history.db"),
		ConnMaxLifetime: time.Hour,
	}
	require.NoError(t, database.InitSQLite(cfg))
	t.Cleanup(func() { _ = database.Close() })

	history, err := NewHistoryStore()
	require.NoError(t, err)
	return history
}

// TestHistoryRecordAndGet 记录一次运行后可按 ID 取回，设备按完成顺序返回
func TestHistoryRecordAndGet(t *testing.T) {
	history := setupHistory(t)

	start := time.Now().Add(-2 * time.Second)
	end := time.Now()
	req := &RunRequest{
		Commands:   []string{"show version", "show run"},
		MaxWorkers: 3,
		Source:     model.RunSourceCLI,
	}
	summary := &RunSummary{
		RunID:             "run_test_001",
		OutputDir:         "/tmp/outputs",
		Total:             2,
		Succeeded:         1,
		Failed:            1,
		DroppedDuplicates: 1,
		StartTime:         start,
		EndTime:           end,
		Outcomes: []DeviceOutcome{
			{Target: "10.0.0.2", Succeeded: false, Error: "10.0.0.2: timeout", CompletedOrder: 1},
			{Target: "10.0.0.1", Hostname: "R1", Succeeded: true, OutputBytes: 42, OutputPath: "/tmp/outputs/R1_10_0_0_1.txt", CompletedOrder: 2},
		},
	}
	require.NoError(t, history.Record(req, summary))

	run, devices, err := history.GetRun("run_test_001")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusPartial, run.Status)
	assert.Equal(t, "show version\nshow run", run.Commands)
	assert.Equal(t, 1, run.DroppedDuplicates)
	assert.Equal(t, model.RunSourceCLI, run.Source)

	require.Len(t, devices, 2)
	assert.Equal(t, "10.0.0.2", devices[0].Target, "设备结果按完成顺序返回")
	assert.Equal(t, "10.0.0.2: timeout", devices[0].ErrorMsg)
	assert.Equal(t, "R1", devices[1].Hostname)
}

// TestHistoryGetRunNotFound 不存在的运行 ID 返回明确错误
func TestHistoryGetRunNotFound(t *testing.T) {
	history := setupHistory(t)

	_, _, err := history.GetRun("run_missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
}

// TestHistoryListRuns 分页列出，按开始时间倒序
func TestHistoryListRuns(t *testing.T) {
	history := setupHistory(t)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		summary := &RunSummary{
			RunID:     []string{"run_a", "run_b", "run_c"}[i],
			Total:     1,
			Succeeded: 1,
			StartTime: base.Add(time.Duration(i) * time.Minute),
			EndTime:   base.Add(time.Duration(i)*time.Minute + 10*time.Second),
		}
		require.NoError(t, history.Record(&RunRequest{Commands: []string{"show clock"}}, summary))
	}

	runs, total, err := history.ListRuns(1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, runs, 2)
	assert.Equal(t, "run_c", runs[0].ID, "最近开始的排最前")
	assert.Equal(t, "run_b", runs[1].ID)

	runs, _, err = history.ListRuns(2, 2)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run_a", runs[0].ID)
}

// TestHistoryCredentialsNeverPersisted 运行记录不包含任何凭据字段
func TestHistoryCredentialsNeverPersisted(t *testing.T) {
	history := setupHistory(t)

	summary := &RunSummary{
		RunID:     "run_creds",
		Total:     1,
		Succeeded: 1,
		StartTime: time.Now(),
		EndTime:   time.Now(),
	}
	req := &RunRequest{Commands: []string{"show version"}}
	req.Credentials.Username = "admin"
	req.Credentials.Password = "s3cret"
	require.NoError(t, history.Record(req, summary))

	run, _, err := history.GetRun("run_creds")
	require.NoError(t, err)
	assert.NotContains(t, run.Commands, "s3cret")
	assert.NotContains(t, run.OutputDir, "s3cret")
}
