package model

import (
	"fmt"
)

// SegmentID identifies a physical segment within a tablet.
type SegmentID uint32

// RowOffset is a dense, segment-local row position.
// It is transient and may change during compaction.
type RowOffset uint32

// RowOffsetMask masks the row-offset half of a packed Location.
const RowOffsetMask = uint64(0xffffffff)

// Location is the physical address of a row version, packed into one
// 64-bit value: high 32 bits segment id, low 32 bits row offset.
type Location uint64

// NotFound is the sentinel Location reported for lookup misses.
const NotFound = Location(^uint64(0))

// NewLocation packs a segment id and row offset into a Location.
func NewLocation(seg SegmentID, off RowOffset) Location {
	return Location(uint64(seg)<<32 | uint64(off)&RowOffsetMask)
}

// Segment returns the segment id half of the location.
func (l Location) Segment() SegmentID {
	return SegmentID(uint64(l) >> 32)
}

// Offset returns the row-offset half of the location.
func (l Location) Offset() RowOffset {
	return RowOffset(uint64(l) & RowOffsetMask)
}

// String returns a string representation of the Location.
func (l Location) String() string {
	if l == NotFound {
		return "Loc(-)"
	}
	return fmt.Sprintf("Loc(%d:%d)", l.Segment(), l.Offset())
}

// DeletesMap collects row positions superseded by a mutation, grouped by
// the segment that held the old version. It is produced by index mutations
// and consumed by the write pipeline; the index never retains it.
type DeletesMap map[SegmentID][]RowOffset

// Add records one superseded row position.
func (d DeletesMap) Add(loc Location) {
	d[loc.Segment()] = append(d[loc.Segment()], loc.Offset())
}

// NumDeletes returns the total number of recorded positions.
func (d DeletesMap) NumDeletes() int {
	n := 0
	for _, offs := range d {
		n += len(offs)
	}
	return n
}
