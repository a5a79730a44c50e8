package service

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/showclipro/showclipro/internal/config"
	"github.com/showclipro/showclipro/pkg/logger"
)

// StorageWriter 运行产物镜像写入器
type StorageWriter interface {
	// MirrorArtifacts 将输出目录下的产物上传到远端存储
	MirrorArtifacts(ctx context.Context, runID, dir string) error
}

// NewStorageWriter 根据配置创建镜像写入器；backend 为 local 时不做镜像
func NewStorageWriter(cfg *config.Config) StorageWriter {
	backend := strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if backend != "minio" {
		return nil
	}
	w := initMinioMirror(cfg)
	if w == nil {
		logger.Warn("MinIO backend selected but client not initialized; mirroring disabled")
		return nil
	}
	return w
}

// MinioMirror MinIO 对象存储镜像
type MinioMirror struct {
	cfg           *config.MinioConfig
	client        *minio.Client
	endpoint      string
	bucketEnsured bool
}

// initMinioMirror 初始化 MinIO 客户端并做一次轻量连通性校验
func initMinioMirror(cfg *config.Config) *MinioMirror {
	host := strings.TrimSpace(cfg.Storage.Minio.Host)
	port := cfg.Storage.Minio.Port
	if host == "" || port <= 0 {
		logger.Warn("MinIO configuration incomplete; host/port missing")
		return nil
	}
	endpoint := fmt.Sprintf("%s:%d", host, port)

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.Storage.Minio.AccessKey, cfg.Storage.Minio.SecretKey, ""),
		Secure:    cfg.Storage.Minio.Secure,
		Transport: transport,
	})
	if err != nil {
		logger.Error("MinIO client initialization failed", "error", err)
		return nil
	}

	w := &MinioMirror{cfg: &cfg.Storage.Minio, client: client, endpoint: endpoint}

	bucket := strings.TrimSpace(cfg.Storage.Minio.Bucket)
	if bucket == "" {
		logger.Warn("MinIO bucket not configured")
		return w
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.ensureBucket(ctx, bucket, 2); err != nil {
		logger.Warn("MinIO bucket ensure at init failed", "error", err)
	} else {
		w.bucketEnsured = true
	}
	return w
}

// MirrorArtifacts 上传目录下所有 .txt 产物到 {prefix}/{runID}/ 之下。
// 镜像失败只报告，不影响本地产物。
func (w *MinioMirror) MirrorArtifacts(ctx context.Context, runID, dir string) error {
	bucket := strings.TrimSpace(w.cfg.Bucket)
	if bucket == "" {
		return fmt.Errorf("minio bucket not configured")
	}

	// 写入前快速连通性探测，失败则尽早返回明确错误
	if err := w.fastConnectivityCheck(ctx); err != nil {
		return fmt.Errorf("minio connectivity failed to %s: %w", w.endpoint, err)
	}
	if !w.bucketEnsured {
		if err := w.ensureBucket(ctx, bucket, 3); err != nil {
			return fmt.Errorf("minio ensure bucket failed: %w", err)
		}
		w.bucketEnsured = true
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read artifact dir: %w", err)
	}

	var lastErr error
	uploaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		local := filepath.Join(dir, entry.Name())
		objectName := path.Join(strings.TrimSpace(w.cfg.Prefix), runID, entry.Name())
		if err := w.putFile(ctx, bucket, objectName, local); err != nil {
			lastErr = err
			logger.Warn("MinIO upload failed", "object", objectName, "error", err)
			continue
		}
		uploaded++
	}
	if lastErr != nil {
		return fmt.Errorf("mirrored %d artifacts, last error: %w", uploaded, lastErr)
	}
	logger.Info("Artifacts mirrored to MinIO", "run_id", runID, "count", uploaded)
	return nil
}

// putFile 带有限重试的对象上传
func (w *MinioMirror) putFile(ctx context.Context, bucket, objectName, local string) error {
	var lastErr error
	backoffs := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i := 0; i < len(backoffs); i++ {
		attemptCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		_, err := w.client.FPutObject(attemptCtx, bucket, objectName, local, minio.PutObjectOptions{
			ContentType: "text/plain; charset=utf-8",
		})
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		time.Sleep(backoffs[i])
	}
	return fmt.Errorf("minio put object failed after retries: %w", lastErr)
}

// fastConnectivityCheck 使用 TCP 直连做快速连通性校验
func (w *MinioMirror) fastConnectivityCheck(parent context.Context) error {
	d := &net.Dialer{Timeout: 3 * time.Second}
	conn, err := d.DialContext(parent, "tcp", w.endpoint)
	if err != nil {
		return err
	}
	_ = conn.Close()
	return nil
}

// ensureBucket 校验并创建 bucket，支持有限重试
func (w *MinioMirror) ensureBucket(parent context.Context, bucket string, retries int) error {
	var lastErr error
	for i := 0; i <= retries; i++ {
		ctx, cancel := context.WithTimeout(parent, 10*time.Second)
		exists, err := w.client.BucketExists(ctx, bucket)
		cancel()
		if err != nil {
			lastErr = err
			time.Sleep(time.Duration(i+1) * time.Second)
			continue
		}
		if exists {
			return nil
		}
		ctx2, cancel2 := context.WithTimeout(parent, 10*time.Second)
		mkErr := w.client.MakeBucket(ctx2, bucket, minio.MakeBucketOptions{})
		cancel2()
		if mkErr != nil {
			lastErr = mkErr
			time.Sleep(time.Duration(i+1) * time.Second)
			continue
		}
		return nil
	}
	if lastErr != nil {
		return lastErr
	}
	return fmt.Errorf("bucket ensure failed for %s", bucket)
}
