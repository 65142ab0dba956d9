// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package kagglefetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Downloader materializes a dataset in a local cache and returns its path.
type Downloader interface {
	DatasetDownload(ctx context.Context, h Handle, progress ProgressFunc) (string, error)
}

var _ Downloader = (*Client)(nil)

// progressReader wraps an io.Reader and emits progress events during reads.
type progressReader struct {
	reader     io.Reader
	total      int64
	downloaded int64
	path       string
	emit       func(ProgressEvent)
	lastEmit   time.Time
	interval   time.Duration
}

func newProgressReader(r io.Reader, total int64, path string, emit func(ProgressEvent)) *progressReader {
	return &progressReader{
		reader:   r,
		total:    total,
		path:     path,
		emit:     emit,
		lastEmit: time.Now(),
		interval: 200 * time.Millisecond,
	}
}

func (pr *progressReader) Read(p []byte) (n int, err error) {
	n, err = pr.reader.Read(p)
	if n > 0 {
		pr.downloaded += int64(n)
		if time.Since(pr.lastEmit) >= pr.interval || err == io.EOF {
			pr.emit(ProgressEvent{
				Event:      "download_progress",
				Path:       pr.path,
				Downloaded: pr.downloaded,
				Total:      pr.total,
			})
			pr.lastEmit = time.Now()
		}
	}
	return n, err
}

// DatasetDownload downloads h into the cache and returns the version directory.
//
// An unversioned handle is resolved to the current version first. A complete
// cached copy is returned without touching the network unless ForceDownload
// is set. The version directory only appears once the payload is fully
// downloaded and unpacked.
func (c *Client) DatasetDownload(ctx context.Context, h Handle, progress ProgressFunc) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	emit := func(ev ProgressEvent) {
		if progress == nil {
			return
		}
		if ev.Time.IsZero() {
			ev.Time = time.Now()
		}
		if ev.Handle == "" {
			ev.Handle = h.String()
		}
		progress(ev)
	}

	creds, err := ResolveCredentials(c.cfg)
	if err != nil {
		return "", err
	}

	if !h.IsVersioned() {
		emit(ProgressEvent{Event: "resolve", Message: "looking up current version"})
		var v int
		err := c.withRetry(ctx, h.String(), emit, func() error {
			var err error
			v, err = c.currentVersion(ctx, creds, h)
			return err
		})
		if err != nil {
			return "", err
		}
		h = h.WithVersion(v)
	}

	dir := c.cache.versionDir(h)
	if !c.cfg.ForceDownload && c.cache.isComplete(h) {
		emit(ProgressEvent{Event: "cache_hit", Path: dir})
		return dir, nil
	}

	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", err
	}
	id := uuid.NewString()
	tmp := filepath.Join(parent, fmt.Sprintf(".%d-%s.part", h.Version, id))
	stage := filepath.Join(parent, fmt.Sprintf(".%d-%s.staging", h.Version, id))
	defer os.Remove(tmp)
	defer os.RemoveAll(stage)

	var name string
	err = c.withRetry(ctx, h.String(), emit, func() error {
		var err error
		name, err = c.fetchArchive(ctx, creds, h, tmp, emit)
		return err
	})
	if err != nil {
		return "", err
	}

	zipped, err := isZip(tmp)
	if err != nil {
		return "", err
	}
	if zipped {
		emit(ProgressEvent{Event: "extract", Path: dir})
		if err := extractZip(tmp, stage); err != nil {
			return "", fmt.Errorf("extract archive: %w", err)
		}
	} else {
		if err := os.MkdirAll(stage, 0o755); err != nil {
			return "", err
		}
		if err := os.Rename(tmp, filepath.Join(stage, name)); err != nil {
			return "", err
		}
	}

	// Replace whatever a previous, interrupted or forced run left behind.
	if err := os.RemoveAll(dir); err != nil {
		return "", err
	}
	if err := os.Rename(stage, dir); err != nil {
		return "", err
	}
	if err := c.cache.markComplete(h); err != nil {
		return "", err
	}

	emit(ProgressEvent{Event: "download_done", Path: dir})
	return dir, nil
}

// fetchArchive streams the dataset payload into dst and returns the file
// name the server suggested.
func (c *Client) fetchArchive(ctx context.Context, creds Credentials, h Handle, dst string, emit func(ProgressEvent)) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL(c.cfg.Endpoint, h), nil)
	if err != nil {
		return "", err
	}
	addAuth(req, creds)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apiError(resp)
	}

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()

	emit(ProgressEvent{Event: "download_start", Path: h.String(), Total: resp.ContentLength})
	pr := newProgressReader(resp.Body, resp.ContentLength, h.String(), emit)
	if _, err := io.Copy(out, pr); err != nil {
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return payloadName(resp, h), nil
}

// payloadName picks a file name for a non-archive payload.
func payloadName(resp *http.Response, h Handle) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := filepath.Base(params["filename"]); name != "." && name != string(filepath.Separator) && name != "" {
				return name
			}
		}
	}
	return h.Dataset
}

// withRetry runs fn, retrying network errors and retryable API statuses with
// backoff. Context cancellation and permanent API errors stop immediately.
func (c *Client) withRetry(ctx context.Context, label string, emit func(ProgressEvent), fn func() error) error {
	retry := newRetry(c.cfg)
	max := retries(c.cfg)
	var lastErr error

	for attempt := 0; attempt <= max; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var apiErr *APIError
		if errors.As(lastErr, &apiErr) && !apiErr.IsRetryable() {
			return lastErr
		}

		if attempt < max {
			emit(ProgressEvent{Event: "retry", Path: label, Attempt: attempt + 1, Message: lastErr.Error()})
			if d := retry.Next(); !sleepCtx(ctx, d) {
				return ctx.Err()
			}
		}
	}
	return lastErr
}

// VersionPath returns where h would be cached, without downloading. The
// handle must be versioned.
func (c *Client) VersionPath(h Handle) (string, error) {
	if !h.IsVersioned() {
		return "", fmt.Errorf("%w: version required, got %q", ErrInvalidHandle, h.String())
	}
	return c.cache.versionDir(h), nil
}

// CachedVersions lists the version directories present in the cache for h,
// newest first.
func (c *Client) CachedVersions(h Handle) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(c.cache.datasetDir(h), "versions"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var nums []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if n, err := strconv.Atoi(e.Name()); err == nil {
			nums = append(nums, n)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(nums)))
	out := make([]string, 0, len(nums))
	for _, n := range nums {
		out = append(out, c.cache.versionDir(h.WithVersion(n)))
	}
	return out, nil
}
