// Package model defines core types used throughout Colibri.
//
// # Identity Types
//
//   - SegmentID: Unique identifier for a segment within a tablet (uint32)
//   - RowOffset: Segment-local row position (uint32)
//   - Location: Physical address packed into one uint64 (SegmentID | RowOffset)
//
// # Mutation Results
//
//   - DeletesMap: superseded row positions grouped by source segment,
//     returned by index mutations and persisted by the write pipeline
package model
