package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	xerrors "github.com/livepeer/retention-engine/errors"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	name        string
	failN       int
	calls       int
	downloadErr error
	data        string
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	f.calls++
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	if f.calls <= f.failN {
		return nil, errors.New("transient failure")
	}
	return io.NopCloser(strings.NewReader(f.data)), nil
}

func (f *fakeBackend) Upload(ctx context.Context, key string, body io.Reader, contentType string) error {
	f.calls++
	if f.calls <= f.failN {
		return errors.New("upload failure")
	}
	return nil
}

func (f *fakeBackend) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://signed/" + key, nil
}

func (f *fakeBackend) Delete(ctx context.Context, key string) error { return nil }

func (f *fakeBackend) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return true, nil
}

func TestDownloadFallsBackToSecondary(t *testing.T) {
	primary := &fakeBackend{name: "primary", failN: 10}
	secondary := &fakeBackend{name: "secondary", data: "hello"}
	gw := NewGateway(primary, secondary, nil, "")

	dest := t.TempDir() + "/out.bin"
	err := gw.DownloadObjectToFile(context.Background(), "job1", "key", dest)
	require.NoError(t, err)

	contents, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "hello", string(contents))
}

func TestDownloadObjectNotFoundStopsRetrying(t *testing.T) {
	primary := &fakeBackend{name: "primary", downloadErr: xerrors.NewObjectNotFoundError("gone", nil)}
	gw := NewGateway(primary, nil, nil, "")

	err := gw.DownloadObjectToFile(context.Background(), "job1", "key", t.TempDir()+"/out.bin")
	require.Error(t, err)
	require.True(t, xerrors.IsObjectNotFound(err))
	require.Equal(t, 1, primary.calls)
}

func TestUploadFallsBackToLocalMirror(t *testing.T) {
	primary := &fakeBackend{name: "primary", failN: 100}
	dir := t.TempDir()
	gw := NewGateway(primary, nil, nil, dir)

	err := gw.UploadBuffer(context.Background(), "job1", "out/file.mp4", []byte("data"), "video/mp4")
	require.NoError(t, err)

	contents, err := os.ReadFile(dir + "/out/file.mp4")
	require.NoError(t, err)
	require.Equal(t, "data", string(contents))
}

func TestSignedGetURLFallsBackToLocal(t *testing.T) {
	gw := NewGateway(nil, nil, nil, "/mirror")
	u, err := gw.SignedGetURL(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	require.Equal(t, "file:///mirror/k", u)
}
