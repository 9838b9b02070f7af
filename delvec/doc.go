// Package delvec tracks logically deleted row offsets per segment.
//
// A DeleteVector is a roaring-bitmap-backed set of row positions that have
// been superseded by upserts, erases or compaction. Reads subtract it from
// a segment's rows; compaction consumes it to reclaim space. Invariants:
// every offset is below the segment's row count, and merges never un-delete.
package delvec
