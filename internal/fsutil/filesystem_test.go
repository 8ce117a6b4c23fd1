package fsutil

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseFileSystem(t *testing.T, fsys FileSystem, root string) {
	t.Helper()

	dir := filepath.Join(root, "seq", "img1")
	require.NoError(t, fsys.MkdirAll(dir, 0755))
	assert.True(t, fsys.Exists(dir))

	require.NoError(t, fsys.WriteFile(filepath.Join(dir, "000002.png"), []byte("b"), 0644))
	require.NoError(t, fsys.WriteFile(filepath.Join(dir, "000001.png"), []byte("a"), 0644))

	names, err := fsys.ReadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"000001.png", "000002.png"}, names)

	w, err := fsys.Create(filepath.Join(root, "results.txt"))
	require.NoError(t, err)
	_, err = io.WriteString(w, "1,1,0,0,10,10,1,-1,-1,-1\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := fsys.ReadFile(filepath.Join(root, "results.txt"))
	require.NoError(t, err)
	assert.Equal(t, "1,1,0,0,10,10,1,-1,-1,-1\n", string(data))

	f, err := fsys.Open(filepath.Join(dir, "000001.png"))
	require.NoError(t, err)
	defer f.Close()
	got, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "a", string(got))

	_, err = fsys.ReadFile(filepath.Join(root, "missing.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.False(t, fsys.Exists(filepath.Join(root, "missing.txt")))
}

func TestOSFileSystem(t *testing.T) {
	t.Parallel()
	exerciseFileSystem(t, OSFileSystem{}, t.TempDir())
}

func TestMemoryFileSystem(t *testing.T) {
	t.Parallel()
	exerciseFileSystem(t, NewMemoryFileSystem(), "/data")
}

func TestMemoryFileSystem_ReadDirMissing(t *testing.T) {
	t.Parallel()
	m := NewMemoryFileSystem()
	_, err := m.ReadDir("/nowhere")
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, m.MkdirAll("/empty", 0755))
	names, err := m.ReadDir("/empty")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestMemoryFileSystem_ReadFileReturnsCopy(t *testing.T) {
	t.Parallel()
	m := NewMemoryFileSystem()
	require.NoError(t, m.WriteFile("/a.txt", []byte("abc"), 0644))
	data, err := m.ReadFile("/a.txt")
	require.NoError(t, err)
	data[0] = 'z'
	again, err := m.ReadFile("/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}
