// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package kagglefetcher

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	wd, err := os.Getwd()
	require.NoError(t, err)

	tests := []struct {
		in   string
		want string
	}{
		{in: "~", want: home},
		{in: "~/data", want: filepath.Join(home, "data")},
		{in: "data/../input", want: filepath.Join(wd, "input")},
		{in: ".", want: wd},
		{in: "~user", want: filepath.Join(wd, "~user")},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := CleanPath(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCleanPath_Idempotent(t *testing.T) {
	for _, p := range []string{"~/x/../y", "./a/b/", "/tmp//z", "rel"} {
		once, err := CleanPath(p)
		require.NoError(t, err)
		twice, err := CleanPath(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice, "input %q", p)
	}
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "c")

	got, err := EnsureDir(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, got)
	assert.DirExists(t, dir)

	// second call is a no-op
	_, err = EnsureDir(dir)
	require.NoError(t, err)
	assert.DirExists(t, dir)
}

func TestEnsureDir_FileInTheWay(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := EnsureDir(file)
	assert.Error(t, err)
}

func TestCopyTree(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "top.csv"), []byte("a,b\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "nested", "inner.txt"), []byte("inner"), 0o600))
	if runtime.GOOS != "windows" {
		require.NoError(t, os.Symlink("top.csv", filepath.Join(src, "link.csv")))
	}

	dst := filepath.Join(t.TempDir(), "copy")
	require.NoError(t, copyTree(src, dst))

	b, err := os.ReadFile(filepath.Join(dst, "nested", "inner.txt"))
	require.NoError(t, err)
	assert.Equal(t, "inner", string(b))
	assert.FileExists(t, filepath.Join(dst, "top.csv"))

	if runtime.GOOS != "windows" {
		fi, err := os.Stat(filepath.Join(dst, "nested", "inner.txt"))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())

		link, err := os.Readlink(filepath.Join(dst, "link.csv"))
		require.NoError(t, err)
		assert.Equal(t, "top.csv", link)
	}

	// source untouched
	assert.FileExists(t, filepath.Join(src, "top.csv"))
}

func TestMoveTree(t *testing.T) {
	src := filepath.Join(t.TempDir(), "src")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "f"), []byte("x"), 0o644))

	dst := filepath.Join(t.TempDir(), "dst")
	require.NoError(t, moveTree(src, dst))

	assert.NoDirExists(t, src)
	assert.FileExists(t, filepath.Join(dst, "f"))
}

func TestMoveTree_MissingSource(t *testing.T) {
	err := moveTree(filepath.Join(t.TempDir(), "missing"), filepath.Join(t.TempDir(), "dst"))
	assert.True(t, os.IsNotExist(err), "got %v", err)
}

var errCrossDevice = errors.New("invalid cross-device link")

// swapFS replaces the rename and removeAll hooks for the duration of t.
func swapFS(t *testing.T, ren func(string, string) error, rm func(string) error) {
	t.Helper()
	oldRename, oldRemove := rename, removeAll
	if ren != nil {
		rename = ren
	}
	if rm != nil {
		removeAll = rm
	}
	t.Cleanup(func() { rename, removeAll = oldRename, oldRemove })
}

func failRename(string, string) error { return errCrossDevice }

func TestMoveTree_CopyFallback(t *testing.T) {
	swapFS(t, failRename, nil)

	src := filepath.Join(t.TempDir(), "src")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "f"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "g"), []byte("y"), 0o600))

	dst := filepath.Join(t.TempDir(), "dst")
	require.NoError(t, moveTree(src, dst))

	assert.NoDirExists(t, src)
	assert.FileExists(t, filepath.Join(dst, "f"))
	b, err := os.ReadFile(filepath.Join(dst, "sub", "g"))
	require.NoError(t, err)
	assert.Equal(t, "y", string(b))
}

func TestMoveTree_CopyFallbackRollsBack(t *testing.T) {
	swapFS(t, failRename, nil)

	src := filepath.Join(t.TempDir(), "src")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "b.txt"), []byte("b"), 0o644))

	// a file where the copy needs a directory
	dst := filepath.Join(t.TempDir(), "dst")
	require.NoError(t, os.MkdirAll(dst, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "sub"), []byte("blocker"), 0o644))

	require.Error(t, moveTree(src, dst))
	assert.NoDirExists(t, dst)
	assert.FileExists(t, filepath.Join(src, "a.txt"))
	assert.FileExists(t, filepath.Join(src, "sub", "b.txt"))
}

func TestMoveTree_SourceLeftWhenRemoveFails(t *testing.T) {
	src := filepath.Join(t.TempDir(), "src")
	swapFS(t, failRename, func(p string) error {
		if p == src {
			return os.ErrPermission
		}
		return os.RemoveAll(p)
	})
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "f"), []byte("x"), 0o644))

	dst := filepath.Join(t.TempDir(), "dst")
	require.NoError(t, moveTree(src, dst))
	assert.FileExists(t, filepath.Join(dst, "f"))
	assert.FileExists(t, filepath.Join(src, "f"))
}
