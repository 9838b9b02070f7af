package snapshot

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/colibridb/colibri/delvec"
	"github.com/colibridb/colibri/internal/hash"
	"github.com/colibridb/colibri/model"
	"github.com/colibridb/colibri/pk"
	"github.com/colibridb/colibri/tablet"
)

const (
	fileMagic = 0x43534e31 // "CSN1"

	// FormatVersion is the snapshot format this build writes. Readers
	// accept newer versions and skip trailing sections they do not know.
	FormatVersion = uint32(1)
)

// Type classifies a snapshot.
type Type uint8

const (
	TypeUnknown Type = iota
	TypeFull
	TypeIncremental
)

// String returns the type name.
func (t Type) String() string {
	switch t {
	case TypeFull:
		return "FULL"
	case TypeIncremental:
		return "INCREMENTAL"
	default:
		return "UNKNOWN"
	}
}

// Meta is the serializable bundle captured for backup, restore and clone:
// tablet metadata, the rowset metadata list and the per-segment delete
// vectors, all consistent with the live-rowset set at SnapshotVersion.
type Meta struct {
	Type            Type
	FormatVersion   uint32
	SnapshotVersion int64
	TabletMeta      tablet.Meta
	RowsetMetas     []tablet.RowsetMeta
	DeleteVectors   map[model.SegmentID]*delvec.DeleteVector
}

// Capture builds a Meta from a tablet's current state.
func Capture(t *tablet.Tablet, typ Type, version int64) *Meta {
	dvs := make(map[model.SegmentID]*delvec.DeleteVector, len(t.DeleteVectors()))
	for seg, dv := range t.DeleteVectors() {
		dvs[seg] = dv.Clone()
	}
	return &Meta{
		Type:            typ,
		FormatVersion:   FormatVersion,
		SnapshotVersion: version,
		TabletMeta:      t.Meta(),
		RowsetMetas:     t.RowsetMetas(),
		DeleteVectors:   dvs,
	}
}

// SerializeTo writes the snapshot to w.
//
// Layout:
//
//	Header (24 bytes):
//	  Magic (4) | FormatVersion (4) | Type (1) | Compression (1) |
//	  Reserved (2) | SnapshotVersion (8) | Reserved (4)
//	Body (optionally compressed as a whole):
//	  tablet meta section
//	  RowsetCount (4) | rowset meta section ×N
//	  DeleteVectorCount (4) | (SegmentID (4) | delete vector section) ×M
//
// Every section is length-prefixed and CRC32C-checked, so a reader under a
// newer format version can skip sections it does not understand.
func (m *Meta) SerializeTo(w io.Writer, opts ...Option) error {
	o := applyOptions(opts)

	formatVersion := m.FormatVersion
	if formatVersion == 0 {
		formatVersion = FormatVersion
	}

	header := make([]byte, 24)
	binary.LittleEndian.PutUint32(header[0:4], fileMagic)
	binary.LittleEndian.PutUint32(header[4:8], formatVersion)
	header[8] = byte(m.Type)
	header[9] = byte(o.compression)
	binary.LittleEndian.PutUint64(header[12:20], uint64(m.SnapshotVersion))
	if _, err := w.Write(header); err != nil {
		return err
	}

	body, err := m.encodeBody()
	if err != nil {
		return err
	}

	bw, finish, err := o.compression.writer(w)
	if err != nil {
		return err
	}
	if _, err := bw.Write(body); err != nil {
		return err
	}
	return finish()
}

// SerializeToFile writes the snapshot to path and syncs it.
func (m *Meta) SerializeToFile(ctx context.Context, path string, opts ...Option) (err error) {
	o := applyOptions(opts)
	defer func() { o.logger.LogSnapshot(ctx, path, err) }()

	f, err := o.fsys.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	var w io.Writer = f
	if o.rc != nil {
		w = o.newRateLimitedWriter(ctx, f)
	}
	if err := m.SerializeTo(w, opts...); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ParseFrom reads a snapshot from r. Failures identify the failing section
// through *SectionError.
func ParseFrom(r io.Reader) (*Meta, error) {
	header := make([]byte, 24)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, sectionErr(SectionHeader, -1, err)
	}
	if magic := binary.LittleEndian.Uint32(header[0:4]); magic != fileMagic {
		return nil, sectionErr(SectionHeader, -1, fmt.Errorf("%w: %x", ErrBadMagic, magic))
	}
	formatVersion := binary.LittleEndian.Uint32(header[4:8])
	if formatVersion == 0 {
		return nil, sectionErr(SectionHeader, -1, fmt.Errorf("%w: %d", ErrBadVersion, formatVersion))
	}
	compression := Compression(header[9])

	m := &Meta{
		Type:            Type(header[8]),
		FormatVersion:   formatVersion,
		SnapshotVersion: int64(binary.LittleEndian.Uint64(header[12:20])),
	}

	br, err := compression.reader(r)
	if err != nil {
		return nil, sectionErr(SectionHeader, -1, err)
	}
	body, err := io.ReadAll(br)
	if err != nil {
		return nil, sectionErr(SectionHeader, -1, err)
	}

	pos := 0
	tabletSection, pos, err := readSection(body, pos)
	if err != nil {
		return nil, sectionErr(SectionTabletMeta, -1, err)
	}
	if err := decodeTabletMeta(tabletSection, &m.TabletMeta); err != nil {
		return nil, sectionErr(SectionTabletMeta, -1, err)
	}

	if pos+4 > len(body) {
		return nil, sectionErr(SectionRowsetMeta, -1, io.ErrUnexpectedEOF)
	}
	rowsetCount := binary.LittleEndian.Uint32(body[pos:])
	pos += 4
	m.RowsetMetas = make([]tablet.RowsetMeta, 0, rowsetCount)
	for i := 0; i < int(rowsetCount); i++ {
		var section []byte
		section, pos, err = readSection(body, pos)
		if err != nil {
			return nil, sectionErr(SectionRowsetMeta, i, err)
		}
		var rm tablet.RowsetMeta
		if err := decodeRowsetMeta(section, &rm); err != nil {
			return nil, sectionErr(SectionRowsetMeta, i, err)
		}
		m.RowsetMetas = append(m.RowsetMetas, rm)
	}

	if pos+4 > len(body) {
		return nil, sectionErr(SectionDeleteVector, -1, io.ErrUnexpectedEOF)
	}
	dvCount := binary.LittleEndian.Uint32(body[pos:])
	pos += 4
	m.DeleteVectors = make(map[model.SegmentID]*delvec.DeleteVector, dvCount)
	for i := 0; i < int(dvCount); i++ {
		if pos+4 > len(body) {
			return nil, sectionErr(SectionDeleteVector, i, io.ErrUnexpectedEOF)
		}
		seg := model.SegmentID(binary.LittleEndian.Uint32(body[pos:]))
		pos += 4
		var section []byte
		section, pos, err = readSection(body, pos)
		if err != nil {
			return nil, sectionErr(SectionDeleteVector, i, err)
		}
		dv := &delvec.DeleteVector{}
		if err := dv.UnmarshalBinary(section); err != nil {
			return nil, sectionErr(SectionDeleteVector, i, err)
		}
		m.DeleteVectors[seg] = dv
	}

	// Trailing bytes belong to sections added by newer format versions.
	return m, nil
}

// ParseFromFile reads a snapshot from path.
func ParseFromFile(ctx context.Context, path string, opts ...Option) (*Meta, error) {
	o := applyOptions(opts)

	f, err := o.fsys.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if o.rc != nil {
		r = o.newRateLimitedReader(ctx, f)
	}
	return ParseFrom(r)
}

func (m *Meta) encodeBody() ([]byte, error) {
	body := appendSection(nil, encodeTabletMeta(&m.TabletMeta))

	body = binary.LittleEndian.AppendUint32(body, uint32(len(m.RowsetMetas)))
	for _, rm := range m.RowsetMetas {
		body = appendSection(body, encodeRowsetMeta(&rm))
	}

	segs := make([]model.SegmentID, 0, len(m.DeleteVectors))
	for seg := range m.DeleteVectors {
		segs = append(segs, seg)
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i] < segs[j] })

	body = binary.LittleEndian.AppendUint32(body, uint32(len(segs)))
	for _, seg := range segs {
		dv, err := m.DeleteVectors[seg].MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("delete vector %d: %w", seg, err)
		}
		body = binary.LittleEndian.AppendUint32(body, uint32(seg))
		body = appendSection(body, dv)
	}
	return body, nil
}

// appendSection appends Length (4) | CRC32C (4) | payload.
func appendSection(dst, payload []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(payload)))
	dst = binary.LittleEndian.AppendUint32(dst, hash.CRC32C(payload))
	return append(dst, payload...)
}

func readSection(body []byte, pos int) ([]byte, int, error) {
	if pos+8 > len(body) {
		return nil, pos, io.ErrUnexpectedEOF
	}
	length := binary.LittleEndian.Uint32(body[pos:])
	checksum := binary.LittleEndian.Uint32(body[pos+4:])
	pos += 8
	if pos+int(length) > len(body) {
		return nil, pos, io.ErrUnexpectedEOF
	}
	payload := body[pos : pos+int(length)]
	pos += int(length)
	if hash.CRC32C(payload) != checksum {
		return nil, pos, ErrChecksum
	}
	return payload, pos, nil
}

func encodeTabletMeta(tm *tablet.Meta) []byte {
	pb := newPayloadBuffer(make([]byte, 0, 64))
	pb.writeUint64(uint64(tm.TabletID))
	pb.writeUint64(uint64(tm.TableID))
	pb.writeUint64(uint64(tm.PartitionID))
	pb.writeUint32(tm.SchemaHash)
	pb.writeUint32(uint32(len(tm.KeyColumns)))
	for _, c := range tm.KeyColumns {
		pb.writeString(c.Name)
		pb.writeUint8(uint8(c.Type))
	}
	return pb.buf
}

func decodeTabletMeta(payload []byte, tm *tablet.Meta) error {
	pb := newPayloadBuffer(payload)
	tm.TabletID = int64(pb.readUint64())
	tm.TableID = int64(pb.readUint64())
	tm.PartitionID = int64(pb.readUint64())
	tm.SchemaHash = pb.readUint32()
	n := pb.readUint32()
	if pb.err != nil {
		return pb.err
	}
	tm.KeyColumns = make([]pk.Column, n)
	for i := range tm.KeyColumns {
		tm.KeyColumns[i].Name = pb.readString()
		tm.KeyColumns[i].Type = pk.ColumnType(pb.readUint8())
	}
	return pb.err
}

func encodeRowsetMeta(rm *tablet.RowsetMeta) []byte {
	pb := newPayloadBuffer(make([]byte, 0, 52))
	pb.writeUint32(rm.RowsetID)
	pb.writeUint64(uint64(rm.StartVersion))
	pb.writeUint64(uint64(rm.EndVersion))
	pb.writeUint64(uint64(rm.NumRows))
	pb.writeUint32(rm.NumSegments)
	pb.writeUint64(uint64(rm.DataSize))
	pb.writeUint64(uint64(rm.CreationTime))
	return pb.buf
}

func decodeRowsetMeta(payload []byte, rm *tablet.RowsetMeta) error {
	pb := newPayloadBuffer(payload)
	rm.RowsetID = pb.readUint32()
	rm.StartVersion = int64(pb.readUint64())
	rm.EndVersion = int64(pb.readUint64())
	rm.NumRows = int64(pb.readUint64())
	rm.NumSegments = pb.readUint32()
	rm.DataSize = int64(pb.readUint64())
	rm.CreationTime = int64(pb.readUint64())
	return pb.err
}
