package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalEnsureRegisterRemove(t *testing.T) {
	root := t.TempDir()
	store := NewLocal(root)

	dir := store.JobDir("", "job-1")
	require.Equal(t, filepath.Join(root, "job-1"), dir)
	require.NoError(t, store.EnsureDir(dir))
	require.NoError(t, store.EnsureDir(dir), "EnsureDir must be idempotent")

	pagePath := filepath.Join(dir, "page.1.jpg")
	require.NoError(t, os.WriteFile(pagePath, []byte("jpegdata"), 0o640))

	info, err := store.Register(dir, pagePath)
	require.NoError(t, err)
	assert.Equal(t, "page.1.jpg", info.Name)
	assert.Equal(t, pagePath, info.Path)
	assert.EqualValues(t, 8, info.Size)

	require.NoError(t, store.Remove(dir))
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, store.Remove(dir), "removing a missing dir is not an error")
}

func TestLocalJobDirUsesOverrideRoot(t *testing.T) {
	store := NewLocal("/srv/output")
	assert.Equal(t, filepath.Join("/tmp/other", "abc"), store.JobDir("/tmp/other", "abc"))
}

func TestLocalRegisterRejectsForeignFile(t *testing.T) {
	root := t.TempDir()
	store := NewLocal(root)
	dir := store.JobDir("", "job-a")
	other := store.JobDir("", "job-b")
	require.NoError(t, store.EnsureDir(dir))
	require.NoError(t, store.EnsureDir(other))

	foreign := filepath.Join(other, "page.1.png")
	require.NoError(t, os.WriteFile(foreign, []byte("x"), 0o640))

	_, err := store.Register(dir, foreign)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOutsideDir))
}

func TestLocalResolveRejectsTraversal(t *testing.T) {
	store := NewLocal(t.TempDir())
	dir := store.JobDir("", "job-1")

	for _, name := range []string{"", ".", "..", "../job-2/page.1.jpg", "sub/page.1.jpg", `..\page.1.jpg`, "/etc/passwd"} {
		_, err := store.Resolve(dir, name)
		assert.ErrorIs(t, err, ErrOutsideDir, "name=%q", name)
	}

	path, err := store.Resolve(dir, "page.2.jpg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "page.2.jpg"), path)
}

func TestLocalRemoveFileIdempotent(t *testing.T) {
	dir := t.TempDir()
	store := NewLocal(dir)
	path := filepath.Join(dir, "upload.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0o640))

	require.NoError(t, store.RemoveFile(path))
	assert.False(t, store.Exists(path))
	assert.NoError(t, store.RemoveFile(path))
}

func TestLocalJobDirsListsDirectoriesOnly(t *testing.T) {
	root := t.TempDir()
	store := NewLocal(root)
	require.NoError(t, store.EnsureDir(store.JobDir("", "job-a")))
	require.NoError(t, store.EnsureDir(store.JobDir("", "job-b")))
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.txt"), []byte("x"), 0o640))

	dirs, err := store.JobDirs()
	require.NoError(t, err)
	require.Len(t, dirs, 2)
	assert.Equal(t, "job-a", dirs[0].Name)
	assert.Equal(t, filepath.Join(root, "job-a"), dirs[0].Path)
	assert.False(t, dirs[0].ModTime.IsZero())
	assert.Equal(t, "job-b", dirs[1].Name)

	missing := NewLocal(filepath.Join(root, "nope"))
	dirs, err = missing.JobDirs()
	require.NoError(t, err)
	assert.Empty(t, dirs)
}
