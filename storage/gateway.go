package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/livepeer/retention-engine/cache"
	xerrors "github.com/livepeer/retention-engine/errors"
	"github.com/livepeer/retention-engine/log"
	"github.com/livepeer/retention-engine/metrics"
	"github.com/sony/gobreaker"
)

const (
	downloadRetries  = 3
	downloadBaseDelay = 350 * time.Millisecond
)

// Gateway implements StorageGateway (spec §4.10): a primary backend with a
// secondary fallback, retries on both, and a local-file fallback mode so the
// pipeline can keep serving an artifact even when both remotes are down.
type Gateway struct {
	primary   Backend
	secondary Backend
	breaker   *gobreaker.CircuitBreaker
	memo      *cache.RedisMemo
	localDir  string
}

func NewGateway(primary, secondary Backend, memo *cache.RedisMemo, localMirrorDir string) *Gateway {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "storage-secondary",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Gateway{primary: primary, secondary: secondary, breaker: breaker, memo: memo, localDir: localMirrorDir}
}

// DownloadObjectToFile tries the primary backend with retries, then the
// secondary, writing the result to destPath.
func (g *Gateway) DownloadObjectToFile(ctx context.Context, jobID, key, destPath string) error {
	body, backend, err := g.downloadWithFallback(ctx, jobID, key)
	if err != nil {
		return err
	}
	defer body.Close()

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create destination file %q: %w", destPath, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, body); err != nil {
		return fmt.Errorf("failed to write downloaded object to %q: %w", destPath, err)
	}
	log.Log(jobID, "downloaded object", "key", key, "backend", backend)
	return nil
}

func (g *Gateway) downloadWithFallback(ctx context.Context, jobID, key string) (io.ReadCloser, string, error) {
	body, err := g.retriedDownload(ctx, g.primary, key)
	if err == nil {
		return body, g.primary.Name(), nil
	}
	if xerrors.IsObjectNotFound(err) {
		return nil, "", err
	}
	log.LogError(jobID, "primary storage backend failed, trying secondary", err, "key", key)

	if g.secondary == nil {
		return nil, "", fmt.Errorf("%w: %s", xerrors.ErrDownloadFailed, err)
	}
	result, berr := g.breaker.Execute(func() (interface{}, error) {
		return g.retriedDownload(ctx, g.secondary, key)
	})
	if berr != nil {
		return nil, "", fmt.Errorf("%w: %s", xerrors.ErrDownloadFailed, berr)
	}
	return result.(io.ReadCloser), g.secondary.Name(), nil
}

func (g *Gateway) retriedDownload(ctx context.Context, backend Backend, key string) (io.ReadCloser, error) {
	var lastErr error
	for attempt := 1; attempt <= downloadRetries; attempt++ {
		start := time.Now()
		body, err := backend.Download(ctx, key)
		if err == nil {
			return body, nil
		}
		metrics.Metrics.StorageClient.FailureCount.WithLabelValues(backend.Name(), "download").Inc()
		metrics.Metrics.StorageClient.RequestDuration.WithLabelValues(backend.Name(), "download").Observe(time.Since(start).Seconds())
		if xerrors.IsObjectNotFound(err) {
			return nil, err
		}
		lastErr = err
		metrics.Metrics.StorageClient.RetryCount.WithLabelValues(backend.Name(), "download").Set(float64(attempt))
		if attempt < downloadRetries {
			time.Sleep(downloadBaseDelay * time.Duration(attempt))
		}
	}
	return nil, lastErr
}

// UploadBuffer uploads an in-memory buffer, trying the primary then the
// secondary. If both fail, it falls back to mirroring the object locally so
// the pipeline can still serve it.
func (g *Gateway) UploadBuffer(ctx context.Context, jobID, key string, data []byte, contentType string) error {
	err := g.retriedUpload(ctx, g.primary, key, data, contentType)
	if err == nil {
		return nil
	}
	log.LogError(jobID, "primary storage upload failed, trying secondary", err, "key", key)

	if g.secondary != nil {
		if serr := g.retriedUpload(ctx, g.secondary, key, data, contentType); serr == nil {
			return nil
		}
	}

	if g.localDir == "" {
		return fmt.Errorf("%w: %s", xerrors.ErrOutputUploadMissing, err)
	}
	return g.mirrorLocally(key, data)
}

func (g *Gateway) UploadFile(ctx context.Context, jobID, key, path, contentType string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file %q for upload: %w", path, err)
	}
	return g.UploadBuffer(ctx, jobID, key, data, contentType)
}

func (g *Gateway) retriedUpload(ctx context.Context, backend Backend, key string, data []byte, contentType string) error {
	var lastErr error
	for attempt := 1; attempt <= downloadRetries; attempt++ {
		start := time.Now()
		err := backend.Upload(ctx, key, bytes.NewReader(data), contentType)
		if err == nil {
			return nil
		}
		metrics.Metrics.StorageClient.FailureCount.WithLabelValues(backend.Name(), "upload").Inc()
		metrics.Metrics.StorageClient.RequestDuration.WithLabelValues(backend.Name(), "upload").Observe(time.Since(start).Seconds())
		lastErr = err
		if attempt < downloadRetries {
			time.Sleep(downloadBaseDelay * time.Duration(attempt))
		}
	}
	return lastErr
}

func (g *Gateway) mirrorLocally(key string, data []byte) error {
	dest := g.localDir + "/" + key
	if err := os.MkdirAll(parentDir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create local mirror dir: %w", err)
	}
	return os.WriteFile(dest, data, 0o644)
}

func parentDir(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

// SignedGetURL returns a signed URL from the primary if configured, else the
// secondary, else a local file:// path when both remotes are unavailable.
func (g *Gateway) SignedGetURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if g.primary != nil {
		if url, err := g.primary.SignedURL(ctx, key, ttl); err == nil {
			return url, nil
		}
	}
	if g.secondary != nil {
		if url, err := g.secondary.SignedURL(ctx, key, ttl); err == nil {
			return url, nil
		}
	}
	if g.localDir != "" {
		return "file://" + g.localDir + "/" + key, nil
	}
	return "", fmt.Errorf("no backend available to sign url for %q", key)
}

func (g *Gateway) DeleteObject(ctx context.Context, key string) error {
	if g.primary != nil {
		if err := g.primary.Delete(ctx, key); err == nil {
			return nil
		}
	}
	if g.secondary != nil {
		return g.secondary.Delete(ctx, key)
	}
	return fmt.Errorf("no backend available to delete %q", key)
}

// EnsureBucket memoizes a bucket-exists lookup process-wide via Redis +
// singleflight, per spec §4.10/§5 ("bucketChecks memo table").
func (g *Gateway) EnsureBucket(ctx context.Context, bucket string) (bool, error) {
	if g.memo == nil {
		return g.primary.BucketExists(ctx, bucket)
	}
	v, err := g.memo.GetOrCompute(ctx, "bucket-exists:"+bucket, func() (string, error) {
		ok, berr := g.primary.BucketExists(ctx, bucket)
		if berr != nil {
			return "", berr
		}
		if ok {
			return "true", nil
		}
		return "false", nil
	})
	if err != nil {
		return false, err
	}
	return v == "true", nil
}
