// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package kagglefetcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Fetcher downloads one dataset, moves it to a destination directory and
// optionally removes the cached copy.
//
// Each step can be called on its own; Fetch runs them in order. A Fetcher
// holds no state between calls besides its configuration.
type Fetcher struct {
	source   string
	handle   Handle
	destBase string
	destPath string

	dl       Downloader
	log      *zap.Logger
	closeLog func() error
	metrics  *Metrics
	progress ProgressFunc
}

// New creates a Fetcher for source ("owner/name" or "owner/name/versions/N").
func New(source string, opts Options) (*Fetcher, error) {
	h, err := ParseHandle(source)
	if err != nil {
		return nil, err
	}

	base := opts.DestBaseDir
	if base == "" {
		base = filepath.Join("kaggle", "input")
	}
	base, err = CleanPath(base)
	if err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	closeLog := func() error { return nil }
	if opts.EnableLogging {
		fileLog, closer, err := NewLogger(LogConfig{
			Enabled: true,
			Dir:     defaultString(opts.LogDir, DefaultLogDir),
			File:    defaultString(opts.LogFile, DefaultLogFile),
			Console: opts.Logger == nil,
		})
		if err != nil {
			return nil, err
		}
		log = zap.New(zapcore.NewTee(log.Core(), fileLog.Core())).Named(DefaultLogName)
		closeLog = closer
	}

	dl := opts.Downloader
	if dl == nil {
		dl = NewClient(opts.Settings)
	}

	return &Fetcher{
		source:   h.String(),
		handle:   h,
		destBase: base,
		destPath: filepath.Join(base, h.Dataset),
		dl:       dl,
		log:      log.With(zap.String("handle", h.String())),
		closeLog: closeLog,
		metrics:  opts.Metrics,
		progress: opts.Progress,
	}, nil
}

// Source returns the dataset identifier.
func (f *Fetcher) Source() string { return f.source }

// Handle returns the parsed dataset identifier.
func (f *Fetcher) Handle() Handle { return f.handle }

// DestBaseDir returns the absolute destination base directory.
func (f *Fetcher) DestBaseDir() string { return f.destBase }

// DestPath returns the default final location, <DestBaseDir>/<dataset name>.
func (f *Fetcher) DestPath() string { return f.destPath }

// Close flushes and closes the log file opened by EnableLogging.
func (f *Fetcher) Close() error {
	_ = f.log.Sync()
	return f.closeLog()
}

func (f *Fetcher) emit(ev ProgressEvent) {
	if f.progress == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	if ev.Handle == "" {
		ev.Handle = f.source
	}
	f.progress(ev)
}

// Download materializes the dataset in the cache and returns the cache path.
func (f *Fetcher) Download(ctx context.Context) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	f.log.Info("downloading dataset")

	var received int64
	path, err := f.dl.DatasetDownload(ctx, f.handle, func(ev ProgressEvent) {
		if ev.Event == "download_progress" {
			received = ev.Downloaded
		}
		if ev.Event == "retry" {
			f.log.Warn("retrying download", zap.Int("attempt", ev.Attempt), zap.String("reason", ev.Message))
		}
		f.emit(ev)
	})
	f.metrics.addBytes(received)
	f.metrics.observe("download", start, err)
	if err != nil {
		f.log.Error("download failed", zap.Error(err))
		f.emit(ProgressEvent{Level: "error", Event: "error", Message: err.Error()})
		return "", &DownloadError{Handle: f.source, Err: err}
	}

	f.log.Info("dataset downloaded", zap.String("cache_path", path))
	return path, nil
}

// Move relocates the cached dataset to destPath, or to DestPath when destPath
// is empty, and returns the final location. An existing destination is
// replaced.
func (f *Fetcher) Move(cachePath, destPath string) (string, error) {
	start := time.Now()
	dest, err := f.relocate("move", cachePath, destPath, moveTree)
	f.metrics.observe("move", start, err)
	if err != nil {
		return "", err
	}
	// The cache no longer holds this version.
	if m := markerFor(cachePath); m != "" {
		_ = os.Remove(m)
	}
	return dest, nil
}

// Copy is like Move but leaves the cached dataset in place.
func (f *Fetcher) Copy(cachePath, destPath string) (string, error) {
	start := time.Now()
	dest, err := f.relocate("copy", cachePath, destPath, copyTree)
	f.metrics.observe("copy", start, err)
	return dest, err
}

func (f *Fetcher) relocate(step, src, destPath string, op func(src, dst string) error) (string, error) {
	dest := f.destPath
	if destPath != "" {
		p, err := CleanPath(destPath)
		if err != nil {
			return "", &MoveError{Src: src, Dst: destPath, Err: err}
		}
		dest = p
	}
	fail := func(err error) (string, error) {
		f.log.Error(step+" failed", zap.String("src", src), zap.String("dest", dest), zap.Error(err))
		f.emit(ProgressEvent{Level: "error", Event: "error", Path: dest, Message: err.Error()})
		return "", &MoveError{Src: src, Dst: dest, Err: err}
	}

	f.log.Info(step+" dataset", zap.String("src", src), zap.String("dest", dest))
	f.emit(ProgressEvent{Event: step, Path: dest})

	if filepath.Clean(src) == dest {
		return dest, nil
	}
	ok, err := exists(src)
	if err != nil {
		return fail(err)
	}
	if !ok {
		return fail(fmt.Errorf("source %s: %w", src, fs.ErrNotExist))
	}

	if _, err := EnsureDir(filepath.Dir(dest)); err != nil {
		return fail(err)
	}
	present, err := exists(dest)
	if err != nil {
		return fail(err)
	}
	if present {
		f.log.Warn("destination already exists, removing it", zap.String("dest", dest))
		if err := os.RemoveAll(dest); err != nil {
			return fail(err)
		}
	}

	if err := op(src, dest); err != nil {
		return fail(err)
	}
	f.log.Info("dataset "+step+" complete", zap.String("dest", dest))
	return dest, nil
}

// Cleanup removes the cached dataset at cachePath. It reports whether
// anything was removed; an absent path is logged as a warning, not an error.
func (f *Fetcher) Cleanup(cachePath string) (bool, error) {
	start := time.Now()
	removed, err := f.cleanup(cachePath)
	f.metrics.observe("cleanup", start, err)
	return removed, err
}

func (f *Fetcher) cleanup(cachePath string) (bool, error) {
	f.log.Info("cleaning up cache", zap.String("cache_path", cachePath))
	f.emit(ProgressEvent{Event: "cleanup", Path: cachePath})

	marker := markerFor(cachePath)
	ok, err := exists(cachePath)
	if err != nil {
		f.log.Error("cleanup failed", zap.String("cache_path", cachePath), zap.Error(err))
		return false, &CleanupError{Path: cachePath, Err: err}
	}
	if !ok {
		if marker != "" {
			_ = os.Remove(marker)
		}
		f.log.Warn("cache path does not exist", zap.String("cache_path", cachePath))
		return false, nil
	}

	// Drop the marker first so a half-removed directory never looks complete.
	if marker != "" {
		if err := os.Remove(marker); err != nil && !os.IsNotExist(err) {
			f.log.Error("cleanup failed", zap.String("cache_path", cachePath), zap.Error(err))
			return false, &CleanupError{Path: cachePath, Err: err}
		}
	}
	if err := removeAll(cachePath); err != nil {
		f.log.Error("cleanup failed", zap.String("cache_path", cachePath), zap.Error(err))
		return false, &CleanupError{Path: cachePath, Err: err}
	}
	f.log.Info("cleanup successful", zap.String("cache_path", cachePath))
	return true, nil
}

// Fetch downloads the dataset, moves it to DestPath and removes the cached
// copy unless keepCache is set. With keepCache the dataset is copied so the
// cache stays intact.
func (f *Fetcher) Fetch(ctx context.Context, keepCache bool) (string, error) {
	return f.FetchTo(ctx, keepCache, "")
}

// FetchTo is Fetch with an explicit destination path.
func (f *Fetcher) FetchTo(ctx context.Context, keepCache bool, destPath string) (string, error) {
	start := time.Now()
	final, err := f.fetch(ctx, keepCache, destPath)
	f.metrics.observe("fetch", start, err)
	return final, err
}

func (f *Fetcher) fetch(ctx context.Context, keepCache bool, destPath string) (string, error) {
	cachePath, err := f.Download(ctx)
	if err != nil {
		return "", err
	}

	var final string
	if keepCache {
		final, err = f.Copy(cachePath, destPath)
	} else {
		final, err = f.Move(cachePath, destPath)
	}
	if err != nil {
		return "", err
	}

	if !keepCache && filepath.Clean(cachePath) != final {
		// Move normally leaves nothing behind.
		if left, _ := exists(cachePath); left {
			if _, err := f.Cleanup(cachePath); err != nil {
				f.log.Warn("cleanup failed but dataset was moved", zap.Error(err))
			}
		}
	}

	f.emit(ProgressEvent{Event: "done", Path: final, Message: "dataset ready at " + final})
	return final, nil
}

// FetchDataset fetches source into destDir in one call and returns the final
// path. An empty destDir means ./kaggle/input.
func FetchDataset(ctx context.Context, source, destDir string) (string, error) {
	return FetchDatasetWithOptions(ctx, source, Options{DestBaseDir: destDir}, false)
}

// FetchDatasetWithOptions is FetchDataset with full control over the Fetcher.
func FetchDatasetWithOptions(ctx context.Context, source string, opts Options, keepCache bool) (string, error) {
	f, err := New(source, opts)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return f.Fetch(ctx, keepCache)
}
