package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS(t *testing.T) {
	tmp := t.TempDir()
	lfs := LocalFS{}

	dir := filepath.Join(tmp, "subdir")
	assert.NoError(t, lfs.MkdirAll(dir, 0755))

	fpath := filepath.Join(dir, "test.txt")
	f, err := lfs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)

	_, err = f.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.NoError(t, f.Sync())

	info, err := f.Stat()
	assert.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())

	assert.NoError(t, f.Close())

	newPath := filepath.Join(dir, "renamed.txt")
	assert.NoError(t, lfs.Rename(fpath, newPath))

	info2, err := lfs.Stat(newPath)
	assert.NoError(t, err)
	assert.Equal(t, int64(5), info2.Size())

	assert.NoError(t, lfs.Remove(newPath))
	_, err = lfs.Stat(newPath)
	assert.True(t, os.IsNotExist(err))
}

func TestFaultyFSWriteLimit(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(nil)
	ffs.AddRule("snap", Fault{FailAfterBytes: 4})

	f, err := ffs.OpenFile(filepath.Join(tmp, "snap.bin"), os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Write([]byte("1234"))
	assert.NoError(t, err)

	_, err = f.Write([]byte("5"))
	assert.ErrorIs(t, err, ErrInjected)
}

func TestFaultyFSSync(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(nil)
	ffs.AddRule("meta", Fault{FailAfterBytes: -1, FailOnSync: true})

	f, err := ffs.OpenFile(filepath.Join(tmp, "meta.bin"), os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Write([]byte("payload"))
	assert.NoError(t, err)
	assert.ErrorIs(t, f.Sync(), ErrInjected)
}
