package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/showclipro/showclipro/internal/config"
	"github.com/showclipro/showclipro/internal/service"
	sshx "github.com/showclipro/showclipro/pkg/ssh"
)

// fakeTransport 固定应答的传输桩
type fakeTransport struct {
	failHosts map[string]error
}

func (t *fakeTransport) Open(ctx context.Context, host string, creds sshx.Credentials) (sshx.Session, error) {
	if err, ok := t.failHosts[host]; ok {
		return nil, err
	}
	return &fakeSession{host: host}, nil
}

type fakeSession struct {
	host string
}

func (s *fakeSession) Enable() error  { return nil }
func (s *fakeSession) Prompt() string { return "SW-" + s.host + "#" }
func (s *fakeSession) Send(cmd string, timeout time.Duration) (string, error) {
	return "output of " + cmd, nil
}
func (s *fakeSession) Close() error { return nil }

func testRouter(t *testing.T, transport sshx.Transport) http.Handler {
	t.Helper()
	cfg := &config.Config{
		Runner: config.RunnerConfig{
			MaxWorkers:     5,
			OutputDir:      t.TempDir(),
			CommandTimeout: 5 * time.Second,
		},
		Storage: config.StorageConfig{Backend: "local"},
	}
	runner := service.NewRunnerServiceWithTransport(cfg, transport)
	return SetupRouter(runner, nil)
}

// TestBatchRunEndpoint 批量执行接口返回完整汇总
func TestBatchRunEndpoint(t *testing.T) {
	r := testRouter(t, &fakeTransport{
		failHosts: map[string]error{"10.0.0.2": errors.New("timeout")},
	})

	body := `{
		"targets": ["10.0.0.1", "10.0.0.2"],
		"commands": ["show version"],
		"username": "admin",
		"password": "secret"
	}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/run/batch", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var summary service.RunSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, []string{"10.0.0.2: timeout"}, summary.Errors)
	assert.NotEmpty(t, summary.RunID)

	// 响应不回显凭据
	assert.NotContains(t, w.Body.String(), "secret")
}

// TestBatchRunValidation 缺参与空清单都是 400
func TestBatchRunValidation(t *testing.T) {
	r := testRouter(t, &fakeTransport{})

	cases := []string{
		`{}`,
		`{"targets": [], "commands": ["show version"], "username": "a", "password": "b"}`,
		`{"targets": ["10.0.0.1"], "commands": [], "username": "a", "password": "b"}`,
		`{"targets": ["10.0.0.1"], "commands": ["show version"], "password": "b"}`,
		`{"targets": ["10.0.0.1"], "commands": ["show version"], "username": "a", "password": "b", "output_subdir": "../escape"}`,
		`not json`,
	}
	for _, body := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/run/batch", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body: %s", body)
	}
}

// TestHealthEndpoint 健康检查
func TestHealthEndpoint(t *testing.T) {
	r := testRouter(t, &fakeTransport{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

// TestRunsEndpointWithoutHistory 历史未启用时返回 503
func TestRunsEndpointWithoutHistory(t *testing.T) {
	r := testRouter(t, &fakeTransport{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs/run_x", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// TestNotFoundRoute 未知路由返回 404 JSON
func TestNotFoundRoute(t *testing.T) {
	r := testRouter(t, &fakeTransport{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_FOUND")
}

// TestRequestIDHeader 请求ID透传与生成
func TestRequestIDHeader(t *testing.T) {
	r := testRouter(t, &fakeTransport{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
