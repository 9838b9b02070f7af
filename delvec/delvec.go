package delvec

import (
	"encoding/binary"
	"fmt"
	"io"
	"iter"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/colibridb/colibri/model"
)

// DeleteVector is the sorted, deduplicated set of logically deleted row
// offsets of one segment. It is produced by primary index mutations and
// consumed by reads and compaction. The version stamp records the tablet
// version that produced the vector; merges carry the newest stamp forward.
type DeleteVector struct {
	version int64
	rb      *roaring.Bitmap
}

// New creates an empty DeleteVector at the given version.
func New(version int64) *DeleteVector {
	return &DeleteVector{version: version, rb: roaring.New()}
}

// FromOffsets builds a DeleteVector from an unordered batch of offsets.
// Duplicates collapse; the result iterates in ascending offset order.
func FromOffsets(version int64, offsets []model.RowOffset) *DeleteVector {
	dv := New(version)
	for _, off := range offsets {
		dv.rb.Add(uint32(off))
	}
	return dv
}

// Version returns the tablet version that produced this vector.
func (dv *DeleteVector) Version() int64 { return dv.version }

// Add marks a row offset as deleted.
func (dv *DeleteVector) Add(off model.RowOffset) {
	dv.rb.Add(uint32(off))
}

// Contains reports whether the row offset is deleted.
func (dv *DeleteVector) Contains(off model.RowOffset) bool {
	return dv.rb.Contains(uint32(off))
}

// IsEmpty returns true if no offsets are deleted.
func (dv *DeleteVector) IsEmpty() bool { return dv.rb.IsEmpty() }

// Cardinality returns the number of deleted offsets.
func (dv *DeleteVector) Cardinality() uint64 { return dv.rb.GetCardinality() }

// Merge unions other into dv. Merging is monotonic: offsets are only ever
// added. The version stamp advances to the newer of the two inputs.
func (dv *DeleteVector) Merge(other *DeleteVector) {
	dv.rb.Or(other.rb)
	if other.version > dv.version {
		dv.version = other.version
	}
}

// Offsets returns the deleted offsets in ascending order.
func (dv *DeleteVector) Offsets() []model.RowOffset {
	out := make([]model.RowOffset, 0, dv.rb.GetCardinality())
	it := dv.rb.Iterator()
	for it.HasNext() {
		out = append(out, model.RowOffset(it.Next()))
	}
	return out
}

// All returns an iterator over the deleted offsets in ascending order.
func (dv *DeleteVector) All() iter.Seq[model.RowOffset] {
	return func(yield func(model.RowOffset) bool) {
		it := dv.rb.Iterator()
		for it.HasNext() {
			if !yield(model.RowOffset(it.Next())) {
				return
			}
		}
	}
}

// Clone returns a deep copy.
func (dv *DeleteVector) Clone() *DeleteVector {
	return &DeleteVector{version: dv.version, rb: dv.rb.Clone()}
}

// SizeInBytes returns the in-memory size of the bitmap.
func (dv *DeleteVector) SizeInBytes() uint64 {
	return dv.rb.GetSizeInBytes()
}

// MarshalBinary encodes the vector as an 8-byte version stamp followed by
// the roaring portable serialization. The encoding is sized to the number
// of deletions, not the segment's row count.
func (dv *DeleteVector) MarshalBinary() ([]byte, error) {
	body, err := dv.rb.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8, 8+len(body))
	binary.LittleEndian.PutUint64(out, uint64(dv.version))
	return append(out, body...), nil
}

// UnmarshalBinary decodes data produced by MarshalBinary.
func (dv *DeleteVector) UnmarshalBinary(data []byte) error {
	if len(data) < 8 {
		return io.ErrUnexpectedEOF
	}
	dv.version = int64(binary.LittleEndian.Uint64(data))
	if dv.rb == nil {
		dv.rb = roaring.New()
	}
	return dv.rb.UnmarshalBinary(data[8:])
}

// String returns a diagnostic rendering.
func (dv *DeleteVector) String() string {
	return fmt.Sprintf("DelVec(version=%d cardinality=%d)", dv.version, dv.rb.GetCardinality())
}

// Equal reports field-for-field equality. Used by snapshot round-trip checks.
func (dv *DeleteVector) Equal(other *DeleteVector) bool {
	return dv.version == other.version && dv.rb.Equals(other.rb)
}
