// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package kagglefetcher

import (
	"os"
	"path/filepath"
	"strconv"
)

// DefaultCacheDir returns the cache root used when Settings.CacheDir is empty.
func DefaultCacheDir() string {
	if dir := os.Getenv("KAGGLEHUB_CACHE"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "kagglehub")
	}
	return filepath.Join(home, ".cache", "kagglehub")
}

// cacheLayout maps handles to locations under the cache root.
//
//	<root>/datasets/<owner>/<name>/versions/<n>     dataset files
//	<root>/datasets/<owner>/<name>/.complete/<n>    completion marker
type cacheLayout struct {
	root string
}

func newCacheLayout(root string) cacheLayout {
	if root == "" {
		root = DefaultCacheDir()
	}
	return cacheLayout{root: root}
}

func (l cacheLayout) datasetDir(h Handle) string {
	return filepath.Join(l.root, "datasets", h.Owner, h.Dataset)
}

// versionDir is the cache path for a versioned handle.
func (l cacheLayout) versionDir(h Handle) string {
	return filepath.Join(l.datasetDir(h), "versions", strconv.Itoa(h.Version))
}

func (l cacheLayout) markerPath(h Handle) string {
	return filepath.Join(l.datasetDir(h), ".complete", strconv.Itoa(h.Version))
}

// isComplete reports whether a finished download is present.
func (l cacheLayout) isComplete(h Handle) bool {
	if _, err := os.Stat(l.markerPath(h)); err != nil {
		return false
	}
	fi, err := os.Stat(l.versionDir(h))
	return err == nil && fi.IsDir()
}

func (l cacheLayout) markComplete(h Handle) error {
	p := l.markerPath(h)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, nil, 0o644)
}

// markerFor returns the completion marker that belongs to a version
// directory, or "" when path is not laid out like one.
func markerFor(versionPath string) string {
	versions := filepath.Dir(versionPath)
	if filepath.Base(versions) != "versions" {
		return ""
	}
	return filepath.Join(filepath.Dir(versions), ".complete", filepath.Base(versionPath))
}
