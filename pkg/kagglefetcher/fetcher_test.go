// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package kagglefetcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// stubDownloader writes a small dataset into a cache laid out like the real
// client's, without any network.
type stubDownloader struct {
	root  string
	err   error
	calls int
}

func (s *stubDownloader) DatasetDownload(_ context.Context, h Handle, progress ProgressFunc) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	if !h.IsVersioned() {
		h = h.WithVersion(1)
	}
	l := cacheLayout{root: s.root}
	dir := l.versionDir(h)
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, "data.csv"), []byte("a,b\n1,2\n"), 0o644); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "notes.txt"), []byte("n"), 0o644); err != nil {
		return "", err
	}
	if progress != nil {
		progress(ProgressEvent{Event: "download_progress", Downloaded: 11, Total: 11})
	}
	return dir, l.markComplete(h)
}

func newTestFetcher(t *testing.T, opts Options) (*Fetcher, *stubDownloader) {
	t.Helper()
	stub := &stubDownloader{root: t.TempDir()}
	if opts.Downloader == nil {
		opts.Downloader = stub
	}
	if opts.DestBaseDir == "" {
		opts.DestBaseDir = filepath.Join(t.TempDir(), "input")
	}
	f, err := New("owner/data", opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f, stub
}

func TestNew(t *testing.T) {
	base := t.TempDir()
	f, err := New("owner/data/versions/7", Options{DestBaseDir: base, Downloader: &stubDownloader{}})
	require.NoError(t, err)

	assert.Equal(t, "owner/data/versions/7", f.Source())
	assert.Equal(t, 7, f.Handle().Version)
	assert.Equal(t, base, f.DestBaseDir())
	assert.Equal(t, filepath.Join(base, "data"), f.DestPath())
	assert.NoDirExists(t, f.DestPath(), "construction must not touch the destination")
}

func TestNew_DefaultBaseDir(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)

	f, err := New("owner/data", Options{Downloader: &stubDownloader{}})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, "kaggle", "input"), f.DestBaseDir())
}

func TestNew_InvalidSource(t *testing.T) {
	_, err := New("not-a-handle", Options{})
	assert.ErrorIs(t, err, ErrInvalidHandle)

	_, err = New("", Options{})
	assert.ErrorIs(t, err, ErrMissingHandle)
}

func TestNew_RejectsEscapingHandle(t *testing.T) {
	root := t.TempDir()
	base := filepath.Join(root, "projects", "input")
	precious := filepath.Join(root, "projects", "precious.txt")
	require.NoError(t, os.MkdirAll(base, 0o755))
	require.NoError(t, os.WriteFile(precious, []byte("keep"), 0o644))

	for _, src := range []string{"owner/..", "owner/.", "../data", "owner/../versions/2"} {
		f, err := New(src, Options{DestBaseDir: base, Downloader: &stubDownloader{root: t.TempDir()}})
		assert.ErrorIs(t, err, ErrInvalidHandle, src)
		assert.Nil(t, f)
	}
	assert.FileExists(t, precious)
}

func TestFetcher_DownloadAndMove(t *testing.T) {
	f, _ := newTestFetcher(t, Options{})

	cachePath, err := f.Download(context.Background())
	require.NoError(t, err)
	assert.DirExists(t, cachePath)

	final, err := f.Move(cachePath, "")
	require.NoError(t, err)
	assert.Equal(t, f.DestPath(), final)

	entries, err := os.ReadDir(final)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
	assert.FileExists(t, filepath.Join(final, "sub", "notes.txt"))
	assert.NoDirExists(t, cachePath)
	assert.NoFileExists(t, markerFor(cachePath))
}

func TestFetcher_MoveReplacesExistingDestination(t *testing.T) {
	f, _ := newTestFetcher(t, Options{})
	require.NoError(t, os.MkdirAll(f.DestPath(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.DestPath(), "stale.txt"), []byte("old"), 0o644))

	cachePath, err := f.Download(context.Background())
	require.NoError(t, err)
	final, err := f.Move(cachePath, "")
	require.NoError(t, err)

	assert.NoFileExists(t, filepath.Join(final, "stale.txt"))
	assert.FileExists(t, filepath.Join(final, "data.csv"))
}

func TestFetcher_MoveToExplicitPath(t *testing.T) {
	f, _ := newTestFetcher(t, Options{})
	cachePath, err := f.Download(context.Background())
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "deep", "custom")
	final, err := f.Move(cachePath, dest)
	require.NoError(t, err)
	assert.Equal(t, dest, final)
	assert.FileExists(t, filepath.Join(dest, "data.csv"))
}

func TestFetcher_MoveMissingSource(t *testing.T) {
	f, _ := newTestFetcher(t, Options{})

	_, err := f.Move(filepath.Join(t.TempDir(), "gone"), "")
	require.Error(t, err)

	var moveErr *MoveError
	require.True(t, errors.As(err, &moveErr))
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Equal(t, f.DestPath(), moveErr.Dst)
	assert.NoDirExists(t, f.DestPath())
}

func TestFetcher_MoveOntoItself(t *testing.T) {
	f, _ := newTestFetcher(t, Options{})
	require.NoError(t, os.MkdirAll(f.DestPath(), 0o755))

	final, err := f.Move(f.DestPath(), "")
	require.NoError(t, err)
	assert.DirExists(t, final)
}

func TestFetcher_CleanupIdempotent(t *testing.T) {
	f, _ := newTestFetcher(t, Options{})
	cachePath, err := f.Download(context.Background())
	require.NoError(t, err)

	removed, err := f.Cleanup(cachePath)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.NoDirExists(t, cachePath)
	assert.NoFileExists(t, markerFor(cachePath))

	removed, err = f.Cleanup(cachePath)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestFetcher_CleanupAbsentWarns(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	f, _ := newTestFetcher(t, Options{Logger: zap.New(core)})

	removed, err := f.Cleanup(filepath.Join(t.TempDir(), "never-there"))
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, 1, logs.FilterMessage("cache path does not exist").FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestFetcher_Fetch(t *testing.T) {
	f, stub := newTestFetcher(t, Options{})

	final, err := f.Fetch(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, f.DestPath(), final)
	assert.FileExists(t, filepath.Join(final, "data.csv"))
	assert.Equal(t, 1, stub.calls)
	assert.NoDirExists(t, cacheLayout{root: stub.root}.versionDir(f.Handle().WithVersion(1)))
}

func TestFetcher_FetchKeepCache(t *testing.T) {
	f, stub := newTestFetcher(t, Options{})

	final, err := f.Fetch(context.Background(), true)
	require.NoError(t, err)

	h := f.Handle().WithVersion(1)
	l := cacheLayout{root: stub.root}
	assert.FileExists(t, filepath.Join(final, "data.csv"))
	assert.FileExists(t, filepath.Join(l.versionDir(h), "data.csv"))
	assert.True(t, l.isComplete(h))
}

func TestFetcher_FetchDownloadFailure(t *testing.T) {
	boom := errors.New("network unreachable")
	f, _ := newTestFetcher(t, Options{Downloader: &stubDownloader{err: boom}})

	_, err := f.Fetch(context.Background(), false)
	require.Error(t, err)

	var dlErr *DownloadError
	require.True(t, errors.As(err, &dlErr))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "owner/data", dlErr.Handle)
	assert.NoDirExists(t, f.DestPath())
	assert.NoDirExists(t, f.DestBaseDir())
}

func TestFetcher_FetchCleanupFailureIsWarning(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	f, stub := newTestFetcher(t, Options{Logger: zap.New(core)})
	swapFS(t, failRename, func(p string) error {
		if strings.HasPrefix(p, stub.root) {
			return os.ErrPermission
		}
		return os.RemoveAll(p)
	})

	final, err := f.Fetch(context.Background(), false)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(final, "data.csv"))

	left := cacheLayout{root: stub.root}.versionDir(f.Handle().WithVersion(1))
	assert.DirExists(t, left)
	warned := logs.FilterMessage("cleanup failed but dataset was moved").FilterLevelExact(zapcore.WarnLevel)
	require.Equal(t, 1, warned.Len())
	assert.Contains(t, warned.All()[0].ContextMap()["error"], os.ErrPermission.Error())
}

func TestFetcher_Events(t *testing.T) {
	var events []string
	f, _ := newTestFetcher(t, Options{Progress: func(ev ProgressEvent) {
		assert.Equal(t, "owner/data", ev.Handle)
		assert.False(t, ev.Time.IsZero())
		events = append(events, ev.Event)
	}})

	_, err := f.Fetch(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"download_progress", "move", "done"}, events)
}

func TestFetcher_Logs(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	f, _ := newTestFetcher(t, Options{Logger: zap.New(core)})

	_, err := f.Fetch(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 1, logs.FilterMessage("downloading dataset").Len())
	assert.Equal(t, 1, logs.FilterMessage("dataset move complete").Len())
	assert.Zero(t, logs.FilterMessage("cache path does not exist").Len())
	assert.Zero(t, logs.FilterLevelExact(zapcore.WarnLevel).Len())
	for _, e := range logs.All() {
		assert.Equal(t, "owner/data", e.ContextMap()["handle"])
	}
}

func TestFetcher_LogsToFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	f, _ := newTestFetcher(t, Options{EnableLogging: true, LogDir: dir})

	_, err := f.Fetch(context.Background(), false)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	b, err := os.ReadFile(filepath.Join(dir, DefaultLogFile))
	require.NoError(t, err)
	assert.Contains(t, string(b), "downloading dataset")
	assert.Contains(t, string(b), DefaultLogName)
}

func TestFetcher_LogsToFileAndStderr(t *testing.T) {
	stderr, err := os.CreateTemp(t.TempDir(), "stderr")
	require.NoError(t, err)
	orig := os.Stderr
	os.Stderr = stderr
	t.Cleanup(func() { os.Stderr = orig })

	dir := filepath.Join(t.TempDir(), "logs")
	f, err := New("owner/data", Options{
		EnableLogging: true,
		LogDir:        dir,
		DestBaseDir:   filepath.Join(t.TempDir(), "input"),
		Downloader:    &stubDownloader{root: t.TempDir()},
	})
	require.NoError(t, err)
	_, err = f.Fetch(context.Background(), false)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, stderr.Close())

	console, err := os.ReadFile(stderr.Name())
	require.NoError(t, err)
	file, err := os.ReadFile(filepath.Join(dir, DefaultLogFile))
	require.NoError(t, err)
	assert.Contains(t, string(console), "downloading dataset")
	assert.Contains(t, string(file), "downloading dataset")
}

func TestFetcher_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	f, _ := newTestFetcher(t, Options{Metrics: m})
	_, err = f.Fetch(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.stepsTotal.WithLabelValues("download", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.stepsTotal.WithLabelValues("move", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.stepsTotal.WithLabelValues("fetch", "success")))
	assert.Equal(t, float64(11), testutil.ToFloat64(m.downloadedBytes))

	_, err = f.Move(filepath.Join(t.TempDir(), "gone"), "")
	require.Error(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.stepsTotal.WithLabelValues("move", "error")))
}

func TestFetchDatasetWithOptions(t *testing.T) {
	stub := &stubDownloader{root: t.TempDir()}
	base := t.TempDir()

	final, err := FetchDatasetWithOptions(context.Background(), "owner/data", Options{DestBaseDir: base, Downloader: stub}, false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "data"), final)
	assert.FileExists(t, filepath.Join(final, "data.csv"))
}
