package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	xerrors "github.com/livepeer/retention-engine/errors"
	"github.com/livepeer/retention-engine/log"
	"github.com/livepeer/retention-engine/metrics"

	"github.com/livepeer/go-tools/drivers"
)

// DriversBackend is the primary backend, grounded on the teacher's
// clients/object_store_client.go. baseURL is an OS URL prefix
// (s3://, gs://, ipfs://, ...) that every key is joined against.
type DriversBackend struct {
	baseURL string
}

func NewDriversBackend(baseURL string) *DriversBackend {
	return &DriversBackend{baseURL: baseURL}
}

func (d *DriversBackend) Name() string { return "primary" }

func (d *DriversBackend) osURL(key string) string {
	return d.baseURL + "/" + key
}

func (d *DriversBackend) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	osURL := d.osURL(key)
	storageDriver, err := drivers.ParseOSURL(osURL, true)
	if err != nil {
		return nil, xerrors.Unretriable(fmt.Errorf("failed to parse OS URL %q: %w", log.RedactURL(osURL), err))
	}

	start := time.Now()
	sess := storageDriver.NewSession("")
	info := sess.GetInfo()
	var host, bucket string
	if info != nil && info.S3Info != nil {
		host = info.S3Info.Host
		bucket = info.S3Info.Bucket
	}

	fileInfoReader, err := sess.ReadData(ctx, "")
	if err != nil {
		metrics.Metrics.StorageClient.FailureCount.WithLabelValues(host, "read").Inc()
		_ = bucket
		if errors.Is(err, drivers.ErrNotExist) {
			return nil, xerrors.NewObjectNotFoundError("not found in primary object store", err)
		}
		return nil, fmt.Errorf("failed to read from OS URL %q: %w", log.RedactURL(osURL), err)
	}
	metrics.Metrics.StorageClient.RequestDuration.WithLabelValues(host, "read").Observe(time.Since(start).Seconds())
	return fileInfoReader.Body, nil
}

func (d *DriversBackend) Upload(ctx context.Context, key string, body io.Reader, contentType string) error {
	osURL := d.osURL(key)
	storageDriver, err := drivers.ParseOSURL(osURL, true)
	if err != nil {
		return fmt.Errorf("failed to parse OS URL %q: %w", log.RedactURL(osURL), err)
	}
	start := time.Now()
	sess := storageDriver.NewSession("")
	info := sess.GetInfo()
	var host string
	if info != nil && info.S3Info != nil {
		host = info.S3Info.Host
	}

	_, err = sess.SaveData(ctx, "", body, &drivers.FileProperties{ContentType: contentType}, 2*time.Minute)
	if err != nil {
		metrics.Metrics.StorageClient.FailureCount.WithLabelValues(host, "write").Inc()
		return fmt.Errorf("failed to write to OS URL %q: %w", log.RedactURL(osURL), err)
	}
	metrics.Metrics.StorageClient.RequestDuration.WithLabelValues(host, "write").Observe(time.Since(start).Seconds())
	return nil
}

func (d *DriversBackend) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	osURL := d.osURL(key)
	driver, err := drivers.ParseOSURL(osURL, true)
	if err != nil {
		return "", fmt.Errorf("failed to parse OS url: %w", err)
	}
	sess := driver.NewSession("")
	signedURL, err := sess.Presign("", ttl)
	if err != nil {
		return "", fmt.Errorf("failed to generate signed url: %w", err)
	}
	return signedURL, nil
}

func (d *DriversBackend) Delete(ctx context.Context, key string) error {
	osURL := d.osURL(key)
	driver, err := drivers.ParseOSURL(osURL, true)
	if err != nil {
		return fmt.Errorf("failed to parse OS url: %w", err)
	}
	sess := driver.NewSession("")
	return sess.DeleteFile(ctx, "")
}

func (d *DriversBackend) BucketExists(ctx context.Context, bucket string) (bool, error) {
	driver, err := drivers.ParseOSURL(d.baseURL, true)
	if err != nil {
		return false, err
	}
	sess := driver.NewSession("")
	_, err = sess.ListFiles(ctx, "", "")
	if err != nil {
		return false, err
	}
	return true, nil
}
