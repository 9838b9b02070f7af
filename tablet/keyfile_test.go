package tablet

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colibridb/colibri/internal/fs"
	"github.com/colibridb/colibri/pk"
)

func TestKeyFileRoundTripFixed(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "seg_10.keys")

	schema, err := pk.NewSchema(pk.Column{Name: "id", Type: pk.TypeInt64})
	require.NoError(t, err)
	keys := encodeKeys(t, schema, 1, 2, 3)

	require.NoError(t, WriteKeyFile(nil, path, schema, keys))

	seg := NewFileSegment(nil, path, 10, 3)
	got, err := seg.PrimaryKeys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, keys, got)
}

func TestKeyFileRoundTripVar(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "seg_11.keys")

	schema, err := pk.NewSchema(pk.Column{Name: "name", Type: pk.TypeVarchar})
	require.NoError(t, err)
	keys, err := schema.EncodeBatch([][]any{{"alpha"}, {"beta"}, {""}})
	require.NoError(t, err)

	require.NoError(t, WriteKeyFile(nil, path, schema, keys))

	seg := NewFileSegment(nil, path, 11, 3)
	got, err := seg.PrimaryKeys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, keys, got)
}

func TestKeyFileChecksumMismatch(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "seg_12.keys")

	schema, err := pk.NewSchema(pk.Column{Name: "id", Type: pk.TypeInt64})
	require.NoError(t, err)
	require.NoError(t, WriteKeyFile(nil, path, schema, encodeKeys(t, schema, 42)))

	// Flip one payload byte.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0644))

	seg := NewFileSegment(nil, path, 12, 1)
	_, err = seg.PrimaryKeys(context.Background())
	assert.ErrorIs(t, err, ErrKeyFileChecksum)
}

func TestKeyFileBadMagic(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "not_a_keyfile")
	require.NoError(t, os.WriteFile(path, make([]byte, 32), 0644))

	seg := NewFileSegment(nil, path, 1, 0)
	_, err := seg.PrimaryKeys(context.Background())
	assert.ErrorIs(t, err, ErrKeyFileMagic)
}

func TestFileSegmentLoadEndToEnd(t *testing.T) {
	tmp := t.TempDir()
	tab, err := New(testMeta())
	require.NoError(t, err)

	keys := encodeKeys(t, tab.Schema(), 10, 20, 30)
	path := filepath.Join(tmp, "seg_1.keys")
	require.NoError(t, WriteKeyFile(nil, path, tab.Schema(), keys))

	tab.AddRowset(NewRowset(
		RowsetMeta{RowsetID: 1, NumRows: 3, NumSegments: 1},
		NewFileSegment(nil, path, 1, 3),
	))

	require.NoError(t, tab.Index().Load(context.Background(), tab))
	assert.Equal(t, 3, tab.Index().Size())
}

func TestKeyFileWriteInjectedIOError(t *testing.T) {
	tmp := t.TempDir()
	schema, err := pk.NewSchema(pk.Column{Name: "id", Type: pk.TypeInt64})
	require.NoError(t, err)
	keys := encodeKeys(t, schema, 1)

	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule("seg_fault", fs.Fault{FailAfterBytes: 0})

	err = WriteKeyFile(ffs, filepath.Join(tmp, "seg_fault.keys"), schema, keys)
	assert.ErrorIs(t, err, fs.ErrInjected)

	// Unmatched files pass through.
	err = WriteKeyFile(ffs, filepath.Join(tmp, "other.keys"), schema, keys)
	assert.NoError(t, err)
}
