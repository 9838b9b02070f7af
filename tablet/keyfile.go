package tablet

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/colibridb/colibri/internal/fs"
	"github.com/colibridb/colibri/internal/hash"
	"github.com/colibridb/colibri/model"
	"github.com/colibridb/colibri/pk"
)

const (
	keyFileMagic   = 0x434b5931 // "CKY1"
	keyFileVersion = 1

	keyFileFlagFixed = 1
)

var (
	// ErrKeyFileMagic indicates the file is not a key-column file.
	ErrKeyFileMagic = errors.New("invalid key file magic")
	// ErrKeyFileVersion indicates an unsupported key-column format version.
	ErrKeyFileVersion = errors.New("unsupported key file version")
	// ErrKeyFileChecksum indicates a corrupt key-column payload.
	ErrKeyFileChecksum = errors.New("key file checksum mismatch")
)

// WriteKeyFile persists a segment's encoded key column.
//
// Format:
//
//	Magic (4 bytes)
//	Version (4 bytes)
//	Checksum (4 bytes) - CRC32C of payload
//	PayloadLength (4 bytes)
//	Payload:
//	  Flags (1 byte) - bit 0: fixed-width keys
//	  RowCount (4 bytes)
//	  Keys... fixed: 8 bytes each; var: 4-byte length + bytes
func WriteKeyFile(fsys fs.FileSystem, path string, schema *pk.Schema, keys []pk.EncodedKey) error {
	if fsys == nil {
		fsys = fs.Default
	}

	payload := make([]byte, 0, 5+len(keys)*8)
	var flags byte
	if schema.Fixed() {
		flags |= keyFileFlagFixed
	}
	payload = append(payload, flags)
	payload = binary.LittleEndian.AppendUint32(payload, uint32(len(keys)))
	for _, k := range keys {
		if schema.Fixed() {
			payload = binary.LittleEndian.AppendUint64(payload, k.Uint64())
		} else {
			payload = binary.LittleEndian.AppendUint32(payload, uint32(len(k.Bytes())))
			payload = append(payload, k.Bytes()...)
		}
	}

	header := make([]byte, 16)
	binary.LittleEndian.PutUint32(header[0:4], keyFileMagic)
	binary.LittleEndian.PutUint32(header[4:8], keyFileVersion)
	binary.LittleEndian.PutUint32(header[8:12], hash.CRC32C(payload))
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(payload)))

	f, err := fsys.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(header); err != nil {
		f.Close()
		return err
	}
	if _, err := f.Write(payload); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// FileSegment is a segment whose key column is read from a persisted
// key-column file on demand. Read or validation failures surface from
// PrimaryKeys, which is how index load reports IO and corruption errors.
type FileSegment struct {
	fsys     fs.FileSystem
	path     string
	id       model.SegmentID
	rowCount uint32
}

// NewFileSegment creates a segment backed by a key-column file.
func NewFileSegment(fsys fs.FileSystem, path string, id model.SegmentID, rowCount uint32) *FileSegment {
	if fsys == nil {
		fsys = fs.Default
	}
	return &FileSegment{fsys: fsys, path: path, id: id, rowCount: rowCount}
}

func (s *FileSegment) ID() model.SegmentID { return s.id }

func (s *FileSegment) RowCount() uint32 { return s.rowCount }

// PrimaryKeys reads and validates the segment's encoded key column.
func (s *FileSegment) PrimaryKeys(ctx context.Context) ([]pk.EncodedKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := s.fsys.OpenFile(s.path, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header := make([]byte, 16)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	if magic := binary.LittleEndian.Uint32(header[0:4]); magic != keyFileMagic {
		return nil, fmt.Errorf("%s: %w: %x", s.path, ErrKeyFileMagic, magic)
	}
	if version := binary.LittleEndian.Uint32(header[4:8]); version != keyFileVersion {
		return nil, fmt.Errorf("%s: %w: %d", s.path, ErrKeyFileVersion, version)
	}
	checksum := binary.LittleEndian.Uint32(header[8:12])
	length := binary.LittleEndian.Uint32(header[12:16])

	payload := make([]byte, length)
	if _, err := io.ReadFull(f, payload); err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	if hash.CRC32C(payload) != checksum {
		return nil, fmt.Errorf("%s: %w", s.path, ErrKeyFileChecksum)
	}

	if len(payload) < 5 {
		return nil, fmt.Errorf("%s: %w", s.path, io.ErrUnexpectedEOF)
	}
	fixed := payload[0]&keyFileFlagFixed != 0
	count := binary.LittleEndian.Uint32(payload[1:5])
	pos := 5

	keys := make([]pk.EncodedKey, 0, count)
	for i := uint32(0); i < count; i++ {
		if fixed {
			if pos+8 > len(payload) {
				return nil, fmt.Errorf("%s: %w", s.path, io.ErrUnexpectedEOF)
			}
			keys = append(keys, pk.FixedKey(binary.LittleEndian.Uint64(payload[pos:])))
			pos += 8
		} else {
			if pos+4 > len(payload) {
				return nil, fmt.Errorf("%s: %w", s.path, io.ErrUnexpectedEOF)
			}
			n := int(binary.LittleEndian.Uint32(payload[pos:]))
			pos += 4
			if pos+n > len(payload) {
				return nil, fmt.Errorf("%s: %w", s.path, io.ErrUnexpectedEOF)
			}
			keys = append(keys, pk.VarKey(payload[pos:pos+n]))
			pos += n
		}
	}
	return keys, nil
}
